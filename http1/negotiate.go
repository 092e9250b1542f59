package http1

import (
	"sort"
	"strconv"
	"strings"
)

// AcceptEncoding negotiates a response content-coding against an
// Accept-Encoding header, per spec §4.3 step 5: an explicit "identity;q=0"
// with no viable alternative is a hard 406.
func AcceptEncoding(header string, offered []string) (chosen string, status Status, ok bool) {
	if header == "" {
		return "identity", StatusOK, true
	}
	type entry struct {
		name string
		q    float64
	}
	var entries []entry
	identityForbidden := false
	wildcardQ := -1.0

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		q := 1.0
		if si := strings.IndexByte(part, ';'); si >= 0 {
			name = strings.TrimSpace(part[:si])
			params := part[si+1:]
			for _, p := range strings.Split(params, ";") {
				p = strings.TrimSpace(p)
				if strings.HasPrefix(p, "q=") {
					if v, err := strconv.ParseFloat(strings.TrimPrefix(p, "q="), 64); err == nil {
						q = v
					}
				}
			}
		}
		name = strings.ToLower(name)
		if name == "identity" && q == 0 {
			identityForbidden = true
		}
		if name == "*" {
			wildcardQ = q
		}
		entries = append(entries, entry{name: name, q: q})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].q > entries[j].q })

	offerSet := make(map[string]bool, len(offered))
	for _, o := range offered {
		offerSet[strings.ToLower(o)] = true
	}

	for _, e := range entries {
		if e.q <= 0 {
			continue
		}
		if e.name == "*" {
			continue
		}
		if offerSet[e.name] {
			return e.name, StatusOK, true
		}
	}

	if wildcardQ > 0 {
		for _, o := range offered {
			return strings.ToLower(o), StatusOK, true
		}
	}

	if identityForbidden {
		return "", StatusNotAcceptable, false
	}
	return "identity", StatusOK, true
}

// ExpectAction is the outcome of evaluating an Expect header (spec §4.3
// step 7).
type ExpectAction int

const (
	ExpectNone ExpectAction = iota
	ExpectContinue
	ExpectReject417
	ExpectInterim
	ExpectFinalResponse
)

// ExpectHandler lets user code decide how to treat an unrecognized Expect
// token (spec §4.3: "Continue / Reject->417 / Interim 1xx / FinalResponse").
type ExpectHandler func(token string) ExpectAction

// ResolveExpect evaluates the Expect header. A "100-continue" token always
// defers to ExpectContinue; otherwise the whole header value is handed to
// handler (if non-nil) as its token argument, defaulting to ExpectReject417
// when handler is nil or returns ExpectNone.
func ResolveExpect(header string, handler ExpectHandler) ExpectAction {
	if header == "" {
		return ExpectNone
	}
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if strings.EqualFold(tok, "100-continue") {
			return ExpectContinue
		}
	}
	if handler != nil {
		if a := handler(header); a != ExpectNone {
			return a
		}
	}
	return ExpectReject417
}
