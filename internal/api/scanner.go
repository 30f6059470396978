package api

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dutchcoders/go-clamd"
)

var errMaliciousFile = errors.New("malicious file detected")

// virusScanner 在文件写入存储前扫描内容。
type virusScanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 命令扫描上传内容。
type ClamdScanner struct {
	client  *clamd.Clamd
	timeout time.Duration
}

// NewClamdScanner 返回指向 addr 的扫描器，例如 tcp://clamav:3310。
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr), timeout: time.Minute}
}

// Scan 返回 errMaliciousFile 表示检出威胁，其他错误表示扫描本身失败。
func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case result, ok := <-results:
			if !ok {
				return nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				return fmt.Errorf("%w: %s", errMaliciousFile, result.Description)
			default:
				return fmt.Errorf("clamd status %s: %s", result.Status, result.Description)
			}
		case <-timer.C:
			return errors.New("clamd scan timed out")
		}
	}
}
