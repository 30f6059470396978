package pdf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const defaultTimeout = 30 * time.Second

// A4 纸张，单位英寸。
const (
	a4Width  = 8.27
	a4Height = 11.69
	marginIn = 0.4
)

// Renderer 使用 go-rod 启动无头 Chromium，将 HTML 打印为 PDF。
// 每次渲染启动独立的浏览器进程，渲染完即回收。
type Renderer struct {
	timeout time.Duration
	bin     string
}

// NewRenderer 返回渲染器。timeout 不大于 0 时使用 30 秒。
func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	r := &Renderer{timeout: timeout}
	if path, ok := launcher.LookPath(); ok {
		r.bin = path
	}
	return r
}

// Render 渲染 HTML 并返回 PDF 字节，ctx 取消时中止渲染。
func (r *Renderer) Render(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)
	if r.bin != "" {
		launch = launch.Bin(r.bin)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().Context(ctx).ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PaperWidth:        float64Ptr(a4Width),
		PaperHeight:       float64Ptr(a4Height),
		MarginTop:         float64Ptr(marginIn),
		MarginBottom:      float64Ptr(marginIn),
		MarginLeft:        float64Ptr(marginIn),
		MarginRight:       float64Ptr(marginIn),
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
