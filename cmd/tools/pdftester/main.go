package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/config"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
	docmodel "github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: extract 或 ask")
	pdfPath := flag.String("pdf", "", "输入 PDF 文件路径")
	question := flag.String("q", "", "ask 模式下的问题，可用 | 分隔多个问题")
	outputPath := flag.String("out", "", "ask 模式下导出的 LaTeX 路径 (留空则不导出)")
	timeout := flag.Duration("timeout", 2*time.Minute, "请求超时时间")

	flag.Parse()

	if *mode != "extract" && *mode != "ask" {
		flag.Usage()
		log.Fatal("请通过 -mode=extract 或 -mode=ask 指定测试模式")
	}
	if *pdfPath == "" {
		log.Fatal("需要通过 -pdf 指定 PDF 文件路径")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	doc := runExtract(ctx, *pdfPath)
	if *mode == "extract" {
		fmt.Println(doc.Text)
		return
	}

	if !cfg.AI.Enabled() {
		log.Fatal("模型未配置，请先设置 OPENAI_API_KEY 或 ARK_* 环境变量")
	}
	runAsk(ctx, cfg, doc, *question, *outputPath)
}

func runExtract(ctx context.Context, pdfPath string) docmodel.Document {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Fatalf("读取 PDF 文件失败: %v", err)
	}

	doc, err := document.NewExtractor().Extract(ctx, filepath.Base(pdfPath), data)
	if err != nil {
		log.Fatalf("文本提取失败: %v", err)
	}

	log.Printf("文本提取成功: name=%s pages=%d chars=%d", doc.Name, doc.Pages, doc.Chars())
	return doc
}

func runAsk(ctx context.Context, cfg *config.Config, doc docmodel.Document, questions, outputPath string) {
	if strings.TrimSpace(questions) == "" {
		log.Fatal("ask 模式需要通过 -q 提供问题")
	}

	svc, err := ai.NewService(ctx, cfg.AI, cfg.QA)
	if err != nil {
		log.Fatalf("AI 服务初始化失败: %v", err)
	}
	chain, err := svc.NewChain(ctx)
	if err != nil {
		log.Fatalf("构建问答链失败: %v", err)
	}

	onRetry := func(retry int, delay time.Duration, cause error) {
		log.Printf("触发限流，%.2f 秒后进行第 %d 次重试: %v", delay.Seconds(), retry, cause)
	}

	var entries []chat.Entry
	for _, q := range strings.Split(questions, "|") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}

		answer, err := svc.Ask(ctx, chain, doc.Text, q, onRetry)
		if err != nil {
			log.Printf("问答失败 (kind=%s): %v", ai.KindOf(err), err)
			continue
		}

		entries = append(entries, chat.Entry{Question: q, Answer: answer, AskedAt: time.Now().UTC()})
		fmt.Printf("Q%d: %s\nA%d: %s\n\n", len(entries), q, len(entries), answer)
	}

	if outputPath == "" || len(entries) == 0 {
		return
	}

	tex := export.RenderLaTeX(entries, export.Options{Escape: cfg.Export.EscapeLaTeX})
	if err := os.WriteFile(outputPath, tex, 0o644); err != nil {
		log.Fatalf("写入 LaTeX 文件失败: %v", err)
	}
	log.Printf("导出成功: %s. %s", outputPath, export.CompileHint)
}
