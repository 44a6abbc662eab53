package apierror

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Scope names the resource a request addressed. It selects the specific
// kind for scope-dependent statuses such as 404 and 400.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeUser
	ScopeSession
	ScopeMemory
	ScopeMergeConflict
)

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeSession:
		return "session"
	case ScopeMemory:
		return "memory"
	case ScopeMergeConflict:
		return "merge_conflict"
	default:
		return "none"
	}
}

// codeAliases maps server codes that differ from a Kind's own string.
var codeAliases = map[string]Kind{
	"unauthorized":              KindAuthentication,
	"forbidden":                 KindAuthentication,
	"rate_limited":              KindRateLimit,
	"too_many_requests":         KindRateLimit,
	"user_exists":               KindUserAlreadyExists,
	"invalid_session_status":    KindInvalidSessionState,
	"conflict_not_found":        KindMergeConflictNotFound,
	"conflict_already_resolved": KindMergeConflictAlreadyResolved,
	"invalid_answers":           KindInvalidAnswer,
	"validation_failed":         KindValidation,
}

// kindForCode resolves a server-supplied code. Codes naming a network kind
// are ignored since those kinds are only raised locally.
func kindForCode(code string) (Kind, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return "", false
	}
	k, ok := codeAliases[c]
	if !ok {
		k = Kind(c)
		ok = k.Known()
	}
	if !ok || k.Category() == CategoryNetwork {
		return "", false
	}
	return k, true
}

// FromResponse maps a non-2xx response onto exactly one *Error. It never
// returns nil, whatever the status.
func FromResponse(status int, header http.Header, body []byte, scope Scope) *Error {
	p := parseBody(body)
	e := &Error{
		HTTPStatus:        status,
		Message:           p.message,
		Code:              p.code,
		InvalidCategories: p.invalidCategories,
		InvalidQuestions:  p.invalidQuestions,
		MissingQuestions:  p.missingQuestions,
		Question:          p.question,
		ValidOptions:      p.validOptions,
	}

	e.Kind = classify(status, scope, p)

	switch e.Kind {
	case KindRateLimit:
		e.RetryAfter = p.retryAfter
		if e.RetryAfter == 0 {
			e.RetryAfter = retryAfterHeader(header.Get("Retry-After"), time.Now())
		}
	case KindInvalidCategories:
		if len(e.InvalidCategories) == 0 {
			e.InvalidCategories = listAfterColon(p.message)
		}
	case KindMissingAnswers:
		if len(e.MissingQuestions) == 0 {
			e.MissingQuestions = listAfterColon(p.message)
		}
	case KindInvalidQuestions:
		if len(e.InvalidQuestions) == 0 {
			e.InvalidQuestions = listAfterColon(p.message)
		}
	case KindInvalidAnswer:
		if e.Question == "" {
			if m := invalidAnswerRe.FindStringSubmatch(p.message); m != nil {
				e.Question = m[1]
			}
		}
		if len(e.ValidOptions) == 0 {
			if i := strings.Index(strings.ToLower(p.message), "valid options:"); i >= 0 {
				e.ValidOptions = splitList(p.message[i+len("valid options:"):])
			}
		}
	}

	if e.Message == "" {
		e.Message = defaultMessage(e.Kind, status)
	}
	return e
}

func classify(status int, scope Scope, p parsedBody) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status <= 599:
		return KindInternalServer
	case status < 400 || status > 499:
		return KindUnexpected
	}

	if k, ok := kindForCode(p.code); ok {
		switch k.Category() {
		case CategoryAuthentication, CategoryServer:
			// those families are fixed by status alone
		default:
			return k
		}
	}

	detail := strings.ToLower(p.message)
	switch status {
	case http.StatusNotFound:
		if userNotFoundRe.MatchString(p.message) {
			return KindUserNotFound
		}
		switch scope {
		case ScopeUser:
			return KindUserNotFound
		case ScopeSession:
			return KindSessionNotFound
		case ScopeMergeConflict:
			return KindMergeConflictNotFound
		}
		return KindNotFound
	case http.StatusConflict:
		if scope == ScopeUser {
			return KindUserAlreadyExists
		}
	case http.StatusUnprocessableEntity:
		if len(p.invalidCategories) > 0 {
			return KindInvalidCategories
		}
		return KindValidation
	case http.StatusBadRequest:
		if len(p.invalidCategories) > 0 {
			return KindInvalidCategories
		}
		switch scope {
		case ScopeSession:
			return KindInvalidSessionState
		case ScopeMemory:
			// the memories endpoints only reject bad category filters with 400
			return KindInvalidCategories
		case ScopeMergeConflict:
			switch {
			case strings.Contains(detail, "already resolved"):
				return KindMergeConflictAlreadyResolved
			case strings.Contains(detail, "invalid questions"):
				return KindInvalidQuestions
			case strings.Contains(detail, "missing answers"):
				return KindMissingAnswers
			case invalidAnswerRe.MatchString(p.message):
				return KindInvalidAnswer
			}
		}
	}
	return KindBadRequest
}

var (
	userNotFoundRe  = regexp.MustCompile(`(?i)^user\b.*\bnot found`)
	invalidAnswerRe = regexp.MustCompile(`(?i)invalid answer.*for question\s+'([^']*)'`)
)

type parsedBody struct {
	message           string
	code              string
	retryAfter        int
	invalidCategories []string
	invalidQuestions  []string
	missingQuestions  []string
	question          string
	validOptions      []string
}

type wireError struct {
	Detail            json.RawMessage `json:"detail"`
	Message           string          `json:"message"`
	Error             json.RawMessage `json:"error"`
	Code              string          `json:"code"`
	ErrorCode         string          `json:"error_code"`
	RetryAfter        json.RawMessage `json:"retry_after"`
	InvalidCategories []string        `json:"invalid_categories"`
	InvalidQuestions  []string        `json:"invalid_questions"`
	MissingQuestions  []string        `json:"missing_questions"`
	Question          string          `json:"question"`
	ValidOptions      []string        `json:"valid_options"`
}

// parseBody never fails: unparseable bodies become the message verbatim.
func parseBody(body []byte) parsedBody {
	var p parsedBody
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return p
	}
	var w wireError
	if err := json.Unmarshal(body, &w); err != nil {
		p.message = truncate(trimmed, 512)
		return p
	}
	p.merge(w, 0)
	return p
}

func (p *parsedBody) merge(w wireError, depth int) {
	if p.code == "" {
		p.code = w.Code
	}
	if p.code == "" {
		p.code = w.ErrorCode
	}
	if p.retryAfter == 0 {
		p.retryAfter = seconds(w.RetryAfter)
	}
	if len(p.invalidCategories) == 0 {
		p.invalidCategories = w.InvalidCategories
	}
	if len(p.invalidQuestions) == 0 {
		p.invalidQuestions = w.InvalidQuestions
	}
	if len(p.missingQuestions) == 0 {
		p.missingQuestions = w.MissingQuestions
	}
	if p.question == "" {
		p.question = w.Question
	}
	if len(p.validOptions) == 0 {
		p.validOptions = w.ValidOptions
	}

	for _, raw := range []json.RawMessage{w.Detail, w.Error} {
		if len(raw) == 0 {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if p.message == "" {
				p.message = s
			}
			continue
		}
		var nested wireError
		if depth < 2 && json.Unmarshal(raw, &nested) == nil {
			p.merge(nested, depth+1)
			continue
		}
		// FastAPI validation errors: [{"loc": [...], "msg": "...", "type": "..."}]
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(raw, &items) == nil && p.message == "" {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			p.message = strings.Join(msgs, "; ")
		}
	}
	if p.message == "" {
		p.message = w.Message
	}
}

// seconds accepts a JSON number or numeric string. Fractions round up.
func seconds(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = v
	}
	if f <= 0 {
		return 0
	}
	n := int(f)
	if float64(n) < f {
		n++
	}
	return n
}

// retryAfterHeader reads delta-seconds or an HTTP date.
func retryAfterHeader(v string, now time.Time) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func listAfterColon(s string) []string {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return nil
	}
	return splitList(s[i+1:])
}

func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]().")
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func defaultMessage(k Kind, status int) string {
	switch k {
	case KindAuthentication:
		return "invalid API key or project ID"
	case KindRateLimit:
		return "API rate limit exceeded"
	case KindInternalServer:
		return "internal server error"
	case KindUserNotFound:
		return "user not found"
	case KindUserAlreadyExists:
		return "user already exists"
	case KindSessionNotFound:
		return "session not found"
	case KindMergeConflictNotFound:
		return "merge conflict not found"
	}
	if t := http.StatusText(status); t != "" {
		return strings.ToLower(t)
	}
	return "unexpected status " + strconv.Itoa(status)
}
