package responsetransformer

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Rules adjust the caching headers of origin responses before the cache sees them.
// The first matching rule wins.
type Rules []Rule

type Rule struct {
	// Host matches the request host exactly, a leading dot also matches subdomains.
	Host   string `yaml:"host"`
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// Method defaults to GET and HEAD.
	Method string `yaml:"method"`
	// Status lists the response codes the rule applies to, 200 only if empty.
	Status []int `yaml:"status"`
	// Default is set as Cache-Control when the response has none.
	Default string `yaml:"default"`
	// Override replaces the Cache-Control of the response.
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

// Apply changes the response headers according to the first matching rule.
// It reports whether a rule matched.
func (r Rules) Apply(res *http.Response) bool {
	if res.Request == nil {
		return false
	}
	// if rule found, apply to response
	if rule := r.find(res); rule != nil {
		applyRuleToResponse(*rule, res)
		return true
	}
	return false
}

func applyRuleToResponse(rule Rule, res *http.Response) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		res.Header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && res.Header.Get("Cache-Control") == "" {
		log.Trace().Msg("Applying default Cache-Control header")
		res.Header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		res.Header.Set(name, value)
	}
}

func (r Rules) find(res *http.Response) *Rule {
	req := res.Request
	log.Trace().Msgf("Finding rule for request %s:%s%s", req.Method, req.URL.Host, req.URL.Path)
rulesLoop:
	for _, rule := range r {
		if !rule.matchesMethod(req.Method) || !rule.matchesStatus(res.StatusCode) || !rule.matchesHost(req.URL.Hostname()) {
			continue
		}
		if rule.Path != "" && rule.Path != req.URL.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := req.URL.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		log.Trace().Msgf("Matched rule %+v", rule)
		return &rule
	}
	return nil
}

func (rule Rule) matchesMethod(method string) bool {
	if rule.Method == "" {
		return method == http.MethodGet || method == http.MethodHead
	}
	return strings.EqualFold(rule.Method, method)
}

func (rule Rule) matchesStatus(status int) bool {
	if len(rule.Status) == 0 {
		return status == http.StatusOK
	}
	for _, s := range rule.Status {
		if s == status {
			return true
		}
	}
	return false
}

func (rule Rule) matchesHost(host string) bool {
	switch {
	case rule.Host == "":
		return true
	case strings.HasPrefix(rule.Host, "."):
		return strings.EqualFold(host, rule.Host[1:]) || strings.HasSuffix(strings.ToLower(host), strings.ToLower(rule.Host))
	default:
		return strings.EqualFold(host, rule.Host)
	}
}
