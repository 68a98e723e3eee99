package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"studio/internal/domain"
	"studio/internal/providers"
)

// User-facing failure messages. English strings double as catalog keys.
const (
	msgServiceBusy     = "The model service is busy (peak demand). This is usually temporary; please retry later."
	msgNoImageOutput   = "The image was not generated: the model returned no image. Try rewording the prompt (prefer original descriptions and avoid well-known IP characters or brand names), or tone down sensitive or conflicting wording, then retry."
	msgJobFailed       = "job failed"
	msgServerRestarted = "server restarted"
	msgShuttingDown    = "server shutting down"
)

var zhMessages = map[string]string{
	msgServiceBusy:     "模型服务繁忙（请求高峰）。这通常是临时问题，请稍后重试。",
	msgNoImageOutput:   "图片未生成成功：模型没有返回图片结果。请尝试改写提示词（优先使用原创描述，避免直接使用知名 IP 角色/品牌名），或降低敏感/冲突表述后重试。",
	msgJobFailed:       "任务失败",
	msgServerRestarted: "服务已重启",
	msgShuttingDown:    "服务正在关闭",
}

func init() {
	for key, msg := range zhMessages {
		if err := message.SetString(language.Chinese, key, msg); err != nil {
			panic(fmt.Sprintf("runner: register zh message %q: %v", key, err))
		}
	}
}

var busySignatures = []string{
	"503 UNAVAILABLE",
	"currently experiencing high demand",
	"'status': 'UNAVAILABLE'",
}

// Models whose empty image responses usually mean a policy rejection.
var promptSensitiveModels = map[string]bool{
	"nano-banana":     true,
	"nano-banana-pro": true,
}

func newPrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	matcher := language.NewMatcher([]language.Tag{language.English, language.Chinese})
	_, idx, _ := matcher.Match(tag)
	if idx == 1 {
		return message.NewPrinter(language.Chinese)
	}
	return message.NewPrinter(language.English)
}

// describeFailure maps a dispatch error to a user-facing message. The raw
// text is kept separately as the job's error detail.
func (r *Runner) describeFailure(job *domain.Job, err error) string {
	detail := err.Error()
	for _, sig := range busySignatures {
		if strings.Contains(detail, sig) {
			return r.printer.Sprintf(msgServiceBusy)
		}
	}
	if job.Type == domain.JobTypeImageGenerate && promptSensitiveModels[job.ModelID] {
		var noOut *providers.NoOutputError
		if errors.As(err, &noOut) || strings.Contains(detail, "No image output") {
			return r.printer.Sprintf(msgNoImageOutput)
		}
	}
	// Only shutdown cancels a running job's context.
	if errors.Is(err, context.Canceled) {
		return r.printer.Sprintf(msgShuttingDown)
	}
	return r.printer.Sprintf(msgJobFailed)
}
