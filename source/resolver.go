// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/poiesic/gleaner/core"
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	// Bare hosts such as www.example.org or docs.example.com.
	hostPattern = regexp.MustCompile(`(?i)\b(?:www\.[a-z0-9-]+(?:\.[a-z0-9-]+)+|[a-z0-9-]+(?:\.[a-z0-9-]+)*\.com)(?:/[^\s<>"'()]*)?`)
	pathPattern = regexp.MustCompile(`(?:^|\s)((?:~|\.{1,2})?/[^\s"']+|[A-Za-z]:\\[^\s"']+)`)
)

// CrawlKeywords select an advanced crawl when they appear next to a URL.
var CrawlKeywords = []string{"crawl", "sitemap", "entire site", "all pages"}

// Prompt is a scrape prompt with its URLs and filesystem paths pulled out.
type Prompt struct {
	Text  string
	Lower string
	URLs  []string
	Paths []string
}

// ParsePrompt extracts targets from text. Bare hosts are only used when the
// prompt has no scheme-qualified URL, and are given an https scheme.
func ParsePrompt(text string) Prompt {
	p := Prompt{Text: text, Lower: strings.ToLower(text)}
	for _, u := range urlPattern.FindAllString(text, -1) {
		p.URLs = appendUnique(p.URLs, trimTarget(u))
	}
	if len(p.URLs) == 0 {
		for _, h := range hostPattern.FindAllString(text, -1) {
			p.URLs = appendUnique(p.URLs, "https://"+trimTarget(h))
		}
	}
	for _, m := range pathPattern.FindAllStringSubmatch(text, -1) {
		p.Paths = appendUnique(p.Paths, trimTarget(m[1]))
	}
	return p
}

// HasKeyword reports whether the prompt mentions any of words.
func (p Prompt) HasKeyword(words ...string) bool {
	for _, w := range words {
		if strings.Contains(p.Lower, w) {
			return true
		}
	}
	return false
}

func trimTarget(s string) string {
	return strings.TrimRight(s, ".,;:!?")
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Rule is one step of auto resolution.
type Rule struct {
	Name  string
	Match func(Prompt) (Plan, bool)
}

// DefaultRules returns the auto resolution order: a URL with crawl keywords,
// then any URL, then a filesystem path.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "url-with-crawl-keyword",
			Match: func(p Prompt) (Plan, bool) {
				if len(p.URLs) == 0 || !p.HasKeyword(CrawlKeywords...) {
					return Plan{}, false
				}
				return AdvancedCrawl(p.URLs...), true
			},
		},
		{
			Name: "url",
			Match: func(p Prompt) (Plan, bool) {
				if len(p.URLs) == 0 {
					return Plan{}, false
				}
				return RemoteCrawl(p.URLs...), true
			},
		},
		{
			Name: "filesystem-path",
			Match: func(p Prompt) (Plan, bool) {
				if len(p.Paths) == 0 {
					return Plan{}, false
				}
				return Local(p.Paths...), true
			},
		},
	}
}

// Resolver maps prompts to plans.
type Resolver struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRules replaces the auto resolution rules.
func WithRules(rules ...Rule) Option {
	return func(r *Resolver) {
		r.rules = rules
	}
}

// WithLogger sets a custom logger for the resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver using DefaultRules unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		rules:  DefaultRules(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "source-resolver")
	return r
}

// Resolve returns the plan for prompt. An explicit hint wins when the prompt
// carries a target of the matching type; otherwise the hint cannot be honoured
// and the plan is Ambiguous.
func (r *Resolver) Resolve(hint core.SourceHint, prompt string) Plan {
	p := ParsePrompt(prompt)

	var plan Plan
	switch hint {
	case core.HintRemoteCrawl, core.HintAdvancedCrawl:
		if len(p.URLs) == 0 {
			plan = Ambiguous(fmt.Sprintf("source hint %s but the prompt contains no URL", hint))
		} else if hint == core.HintAdvancedCrawl {
			plan = AdvancedCrawl(p.URLs...)
		} else {
			plan = RemoteCrawl(p.URLs...)
		}
	case core.HintLocal:
		if len(p.Paths) == 0 {
			plan = Ambiguous("source hint local but the prompt contains no filesystem path")
		} else {
			plan = Local(p.Paths...)
		}
	default:
		plan = r.auto(p)
	}

	r.logger.Debug("resolved source", "hint", hint, "plan", plan.String())
	return plan
}

func (r *Resolver) auto(p Prompt) Plan {
	for _, rule := range r.rules {
		if plan, ok := rule.Match(p); ok {
			r.logger.Debug("source rule matched", "rule", rule.Name)
			return plan
		}
	}
	return Ambiguous("prompt contains no URL or filesystem path")
}

// Plan is Resolve with an Ambiguous result turned into an
// UnresolvableSourceError.
func (r *Resolver) Plan(hint core.SourceHint, prompt string) (Plan, error) {
	plan := r.Resolve(hint, prompt)
	if plan.Kind == KindAmbiguous {
		return plan, core.NewStageError(core.KindUnresolvable, fmt.Errorf("%w: %s", ErrUnresolvable, plan.Reason))
	}
	return plan, nil
}
