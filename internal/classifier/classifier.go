package classifier

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/patterns"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// Config tunes the classification pipeline.
type Config struct {
	// InternalDomains marks recipient addresses as internal; anything else
	// counts as an external recipient.
	InternalDomains []string
	// AfterHoursStart/End bound the normal working window (local hours).
	AfterHoursStart int // e.g. 20
	AfterHoursEnd   int // e.g. 7
	// LLMBandLow/High is the ambiguous score band that escalates to the
	// text classifier.
	LLMBandLow  int
	LLMBandHigh int
	// LLMTimeout bounds the escalation call.
	LLMTimeout time.Duration
	// BaselineWindow is the lookback for the sender behavioural baseline.
	BaselineWindow time.Duration
	// LargeAttachmentBytes is the size above which an attachment adds risk.
	LargeAttachmentBytes int64
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		AfterHoursStart:      20,
		AfterHoursEnd:        7,
		LLMBandLow:           60,
		LLMBandHigh:          89,
		LLMTimeout:           30 * time.Second,
		BaselineWindow:       30 * 24 * time.Hour,
		LargeAttachmentBytes: 10 << 20,
	}
}

// Result is the classifier output for one communication.
type Result struct {
	RiskScore       int                 `json:"risk_score"`
	SecurityScore   int                 `json:"security_score"`
	ComplianceScore int                 `json:"compliance_score"`
	Category        string              `json:"category"`
	RiskFactors     []string            `json:"risk_factors"`
	Findings        map[string][]string `json:"compliance_findings"`
	MandatoryReport bool                `json:"mandatory_report"`
	DetectionMethod string              `json:"detection_method"`
}

// ViolationCounter supplies the sender behavioural baseline.
type ViolationCounter interface {
	CountByEmployeeAndType(ctx context.Context, employeeID, violationType string, since time.Time) (int, error)
}

// Classifier is the cascading risk scorer. It is stateless per call and safe
// for concurrent use.
type Classifier struct {
	cfg        Config
	security   []patterns.CategoryRule
	compliance []patterns.RegulationRule
	llm        port.TextClassifier // nil when unconfigured
	counter    ViolationCounter
	extractor  *AttachmentExtractor
	logger     *zap.Logger
}

// New creates a classifier. llm may be nil; counter may be nil, in which case
// the baseline stage contributes nothing.
func New(cfg Config, llm port.TextClassifier, counter ViolationCounter, logger *zap.Logger) *Classifier {
	return &Classifier{
		cfg:        cfg,
		security:   patterns.SecurityRules(),
		compliance: patterns.ComplianceRules(),
		llm:        llm,
		counter:    counter,
		extractor:  NewAttachmentExtractor(logger),
		logger:     logger,
	}
}

// Classify runs the full pipeline. Stage failures on malformed input are
// treated as zero-contribution stages; Classify itself only errors when the
// communication is unusable outright (empty sender).
func (c *Classifier) Classify(ctx context.Context, comm *models.Communication, profile *models.Employee) (*Result, error) {
	if comm == nil || comm.SenderID == "" {
		return nil, fmt.Errorf("communication has no sender")
	}

	result := &Result{
		Findings:        make(map[string][]string),
		DetectionMethod: "rules",
	}

	text := c.scannableText(comm)

	// Stage 1: fast rule pre-filter.
	secScore, category, factors := c.scoreSecurity(text)
	result.SecurityScore = secScore
	result.Category = category
	result.RiskFactors = append(result.RiskFactors, factors...)

	// Stage 2: compliance pre-screen, scored independently.
	compScore, findings, mandatory := c.scoreCompliance(text)
	result.ComplianceScore = compScore
	result.MandatoryReport = mandatory
	for reg, descs := range findings {
		result.Findings[reg] = descs
	}
	// Compliance wins ties: label with the strongest regulation.
	if len(findings) > 0 && compScore >= secScore {
		result.Category = strongestRegulation(findings)
	}

	// Stage 3: contextual analysis.
	ctxScore, ctxFactors := c.scoreContext(ctx, comm, profile)
	result.RiskFactors = append(result.RiskFactors, ctxFactors...)

	total := clampScore(secScore + compScore + ctxScore)
	result.RiskScore = total

	// Stage 4: LLM escalation for the ambiguous high band only.
	if c.llm != nil && total >= c.cfg.LLMBandLow && total <= c.cfg.LLMBandHigh {
		c.escalate(ctx, text, result)
	}

	c.logger.Debug("Classification completed",
		zap.String("message_id", comm.MessageID),
		zap.Int("risk_score", result.RiskScore),
		zap.Int("security_score", result.SecurityScore),
		zap.Int("compliance_score", result.ComplianceScore),
		zap.String("category", result.Category),
		zap.String("method", result.DetectionMethod))

	return result, nil
}

// scannableText joins subject, body and extracted attachment text. Garbled
// (non-UTF8) parts are dropped rather than failing the analysis.
func (c *Classifier) scannableText(comm *models.Communication) string {
	var parts []string
	for _, p := range []string{comm.Subject, comm.Body} {
		if p == "" {
			continue
		}
		if !utf8.ValidString(p) {
			c.logger.Warn("Dropping non-UTF8 content from analysis",
				zap.String("message_id", comm.MessageID))
			continue
		}
		parts = append(parts, p)
	}
	for _, att := range comm.Attachments {
		text, err := c.extractor.ExtractText(att)
		if err != nil {
			c.logger.Warn("Attachment text extraction failed",
				zap.String("attachment", att.Name), zap.Error(err))
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// scoreSecurity is the stage 1 keyword/regex pre-filter.
func (c *Classifier) scoreSecurity(text string) (int, string, []string) {
	lower := strings.ToLower(text)

	total := 0
	bestScore := 0
	bestCategory := ""
	var factors []string

	for _, rule := range c.security {
		score := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				score += rule.Weight
				factors = append(factors, fmt.Sprintf("keyword:%s:%s", rule.Category, kw))
			}
		}
		for _, re := range rule.Patterns {
			if re.MatchString(text) {
				score += rule.Weight
				factors = append(factors, fmt.Sprintf("pattern:%s", rule.Category))
			}
		}
		if score > rule.MaxScore {
			score = rule.MaxScore
		}
		total += score
		if score > bestScore {
			bestScore = score
			bestCategory = rule.Category
		}
	}

	return clampScore(total), bestCategory, factors
}

// scoreCompliance is the stage 2 regulation pre-screen. Card-like digit runs
// only count when they pass the Luhn check.
func (c *Classifier) scoreCompliance(text string) (int, map[string][]string, bool) {
	lower := strings.ToLower(text)

	total := 0
	mandatory := false
	findings := make(map[string][]string)

	for _, rule := range c.compliance {
		score := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				score += rule.Weight
				findings[rule.Regulation] = append(findings[rule.Regulation],
					fmt.Sprintf("keyword match: %s", kw))
			}
		}
		for _, re := range rule.Patterns {
			matches := re.FindAllString(text, -1)
			for _, m := range matches {
				if rule.Regulation == patterns.RegulationPCIDSS && !patterns.Luhn(m) {
					continue
				}
				score += rule.Weight
				findings[rule.Regulation] = append(findings[rule.Regulation],
					fmt.Sprintf("pattern match: %s", rule.Description))
			}
		}
		if score > rule.MaxScore {
			score = rule.MaxScore
		}
		if score > 0 && rule.MandatoryReport {
			mandatory = true
		}
		total += score
	}

	return clampScore(total), findings, mandatory
}

// scoreContext is the stage 3 contextual analysis. Each check contributes a
// weighted delta; lookup failures contribute zero.
func (c *Classifier) scoreContext(ctx context.Context, comm *models.Communication, profile *models.Employee) (int, []string) {
	score := 0
	var factors []string

	if n := c.externalRecipients(comm.Recipients); n > 0 {
		score += 10 + 2*n
		factors = append(factors, fmt.Sprintf("external_recipients:%d", n))
	}

	if c.afterHours(comm.SentAt) {
		score += 8
		factors = append(factors, "after_hours")
	}

	for _, att := range comm.Attachments {
		if att.Size >= c.cfg.LargeAttachmentBytes {
			score += 10
			factors = append(factors, fmt.Sprintf("large_attachment:%s", att.Name))
		}
		if riskyAttachmentType(att) {
			score += 6
			factors = append(factors, fmt.Sprintf("risky_attachment_type:%s", att.MimeType))
		}
	}

	if profile != nil && profile.MonitoringLevel > 0 {
		if profile.MonitoringUntil == nil || profile.MonitoringUntil.After(time.Now()) {
			score += 5 * profile.MonitoringLevel
			factors = append(factors, "elevated_monitoring")
		}
	}

	if c.counter != nil {
		since := time.Now().Add(-c.cfg.BaselineWindow)
		count, err := c.counter.CountByEmployeeAndType(ctx, comm.SenderID, "", since)
		if err != nil {
			c.logger.Warn("Baseline lookup failed, skipping stage",
				zap.String("employee_id", comm.SenderID), zap.Error(err))
		} else if count > 0 {
			score += 5 * count
			if score > 100 {
				score = 100
			}
			factors = append(factors, fmt.Sprintf("baseline_deviation:%d", count))
		}
	}

	return clampScore(score), factors
}

// escalate refines the score via the LLM collaborator. Any failure falls back
// to the rule-based score already in result.
func (c *Classifier) escalate(ctx context.Context, text string, result *Result) {
	llmCtx, cancel := context.WithTimeout(ctx, c.cfg.LLMTimeout)
	defer cancel()

	tc, err := c.llm.Classify(llmCtx, text)
	if err != nil {
		c.logger.Warn("Text classifier escalation failed, keeping rule-based score",
			zap.Int("rule_score", result.RiskScore), zap.Error(err))
		return
	}

	result.RiskScore = clampScore(tc.Score)
	if tc.Category != "" {
		result.Category = tc.Category
	}
	result.DetectionMethod = "rules+llm"
	result.RiskFactors = append(result.RiskFactors, "llm_refined")
}

func (c *Classifier) externalRecipients(recipients []string) int {
	n := 0
	for _, r := range recipients {
		at := strings.LastIndex(r, "@")
		if at < 0 {
			continue
		}
		domain := strings.ToLower(r[at+1:])
		internal := false
		for _, d := range c.cfg.InternalDomains {
			if domain == strings.ToLower(d) {
				internal = true
				break
			}
		}
		if !internal {
			n++
		}
	}
	return n
}

func (c *Classifier) afterHours(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	h := t.Hour()
	start, end := c.cfg.AfterHoursStart, c.cfg.AfterHoursEnd
	if start > end {
		// Window wraps midnight, e.g. 20:00-07:00.
		return h >= start || h < end
	}
	return h >= start && h < end
}

func riskyAttachmentType(att models.Attachment) bool {
	switch att.MimeType {
	case "application/zip", "application/x-7z-compressed", "application/x-rar-compressed",
		"application/vnd.sqlite3", "application/octet-stream":
		return true
	}
	name := strings.ToLower(att.Name)
	for _, ext := range []string{".sql", ".db", ".csv", ".bak", ".pst"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func strongestRegulation(findings map[string][]string) string {
	best := ""
	bestN := 0
	for reg, descs := range findings {
		if len(descs) > bestN || (len(descs) == bestN && reg < best) {
			best = reg
			bestN = len(descs)
		}
	}
	return best
}

// clampScore rounds and bounds a score into [0,100]; the storage layer has a
// matching range check.
func clampScore(score int) int {
	return int(math.Min(100, math.Max(0, float64(score))))
}
