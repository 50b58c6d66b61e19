package convert

import (
	"context"

	"golang.org/x/time/rate"
)

type limitedAnalyzer struct {
	limiter  *rate.Limiter
	analyzer PDFAnalyzer
}

// LimitAnalyzer caps how often the analyzer is invoked per second. A
// non-positive rps returns a unchanged.
func LimitAnalyzer(rps float64, a PDFAnalyzer) PDFAnalyzer {
	if rps <= 0 || a == nil {
		return a
	}
	return &limitedAnalyzer{limiter: rate.NewLimiter(rate.Limit(rps), 1), analyzer: a}
}

func (l *limitedAnalyzer) Classify(data []byte) ParseMethod {
	return l.analyzer.Classify(data)
}

func (l *limitedAnalyzer) Analyze(ctx context.Context, data []byte, method ParseMethod, imageDir string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.analyzer.Analyze(ctx, data, method, imageDir)
}

type limitedOCR struct {
	limiter *rate.Limiter
	ocr     OCR
}

func LimitOCR(rps float64, o OCR) OCR {
	if rps <= 0 || o == nil {
		return o
	}
	return &limitedOCR{limiter: rate.NewLimiter(rate.Limit(rps), 1), ocr: o}
}

func (l *limitedOCR) Recognize(ctx context.Context, data []byte, name string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.ocr.Recognize(ctx, data, name)
}
