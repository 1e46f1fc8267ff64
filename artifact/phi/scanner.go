// Package phi 检查制品元数据中是否混入了直接的患者标识信息.
package phi

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/artifactflow/types"
)

// Policy 处理策略
type Policy string

const (
	// PolicyOff 不扫描
	PolicyOff Policy = "off"
	// PolicyWarn 记录告警但照常存储
	PolicyWarn Policy = "warn"
	// PolicyReject 拒绝写入
	PolicyReject Policy = "reject"
)

// ParsePolicy accepts off, warn or reject. Empty means warn.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyWarn, nil
	case PolicyOff, PolicyWarn, PolicyReject:
		return p, nil
	default:
		return "", types.Validation("unknown phi policy %q", s)
	}
}

// Kind 标识符类型
type Kind string

const (
	KindIdentifierKey Kind = "identifier_key"
	KindEmail         Kind = "email"
	KindPhone         Kind = "phone"
	KindSSN           Kind = "ssn"
	KindMRN           Kind = "mrn"
)

// Finding 一次命中. Values are never kept in clear, only masked.
type Finding struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	Masked string `json:"masked,omitempty"`
}

// Config 扫描器配置
type Config struct {
	Policy Policy `yaml:"policy" json:"policy"`
	// ExtraKeys 追加的敏感键名
	ExtraKeys []string `yaml:"extra_keys" json:"extra_keys"`
	// AllowKeys 从默认列表中豁免的键名
	AllowKeys []string `yaml:"allow_keys" json:"allow_keys"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Policy: PolicyWarn}
}

var defaultIdentifierKeys = []string{
	"patient_name", "patient_id", "first_name", "last_name", "full_name",
	"mrn", "medical_record_number", "ssn", "social_security_number",
	"dob", "date_of_birth", "birth_date", "birthdate",
	"email", "email_address", "phone", "phone_number", "telephone",
	"address", "street_address", "home_address", "zip_code", "postal_code",
}

func defaultPatterns() map[Kind]*regexp.Regexp {
	return map[Kind]*regexp.Regexp{
		KindEmail: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		// 美国电话: (555) 123-4567 / 555-123-4567 / 555.123.4567
		KindPhone: regexp.MustCompile(`(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`),
		KindSSN:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		KindMRN:   regexp.MustCompile(`(?i)\bMRN[:#\s]*\d{6,}\b`),
	}
}

// Scanner walks metadata maps looking for identifier-shaped keys and values.
type Scanner struct {
	policy   Policy
	keys     map[string]struct{}
	patterns map[Kind]*regexp.Regexp
	order    []Kind
}

// NewScanner 创建扫描器
func NewScanner(cfg Config) *Scanner {
	if cfg.Policy == "" {
		cfg.Policy = PolicyWarn
	}
	s := &Scanner{
		policy:   cfg.Policy,
		keys:     make(map[string]struct{}),
		patterns: defaultPatterns(),
		order:    []Kind{KindSSN, KindMRN, KindEmail, KindPhone},
	}
	for _, k := range defaultIdentifierKeys {
		s.keys[k] = struct{}{}
	}
	for _, k := range cfg.ExtraKeys {
		s.keys[normalizeKey(k)] = struct{}{}
	}
	for _, k := range cfg.AllowKeys {
		delete(s.keys, normalizeKey(k))
	}
	return s
}

// Policy 返回当前策略
func (s *Scanner) Policy() Policy {
	return s.policy
}

// Scan returns every finding in metadata, sorted by path. It ignores the
// policy; Check applies it.
func (s *Scanner) Scan(metadata map[string]any) []Finding {
	var out []Finding
	s.walk("", metadata, &out)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Check applies the policy. With PolicyReject any finding yields a
// VALIDATION error naming the offending paths.
func (s *Scanner) Check(metadata map[string]any) ([]Finding, error) {
	if s == nil || s.policy == PolicyOff {
		return nil, nil
	}
	findings := s.Scan(metadata)
	if len(findings) == 0 || s.policy != PolicyReject {
		return findings, nil
	}
	paths := make([]string, 0, len(findings))
	for _, f := range findings {
		paths = append(paths, fmt.Sprintf("%s (%s)", f.Path, f.Kind))
	}
	return findings, types.Validation("metadata contains direct identifiers: %s", strings.Join(paths, ", "))
}

func (s *Scanner) walk(path string, v any, out *[]Finding) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			p := k
			if path != "" {
				p = path + "." + k
			}
			if _, ok := s.keys[normalizeKey(k)]; ok && !isEmpty(child) {
				*out = append(*out, Finding{Path: p, Kind: KindIdentifierKey})
			}
			s.walk(p, child, out)
		}
	case map[string]string:
		for k, child := range val {
			s.walk(path, map[string]any{k: child}, out)
		}
	case []any:
		for i, child := range val {
			s.walk(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	case []string:
		for i, child := range val {
			s.walk(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	case string:
		s.scanValue(path, val, out)
	}
}

func (s *Scanner) scanValue(path, value string, out *[]Finding) {
	for _, kind := range s.order {
		for _, m := range s.patterns[kind].FindAllString(value, -1) {
			*out = append(*out, Finding{Path: path, Kind: kind, Masked: maskValue(kind, m)})
		}
	}
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer("-", "_", " ", "_").Replace(k)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// maskValue 根据类型脱敏
func maskValue(kind Kind, value string) string {
	switch kind {
	case KindEmail:
		if at := strings.Index(value, "@"); at > 0 {
			return value[:1] + "***" + value[at:]
		}
	case KindPhone, KindSSN, KindMRN:
		if len(value) > 4 {
			return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
		}
	}
	return strings.Repeat("*", len(value))
}
