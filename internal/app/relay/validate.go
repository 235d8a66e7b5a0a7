package relay

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/text"
)

// ValidationError lists every problem with a form.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// Clean sanitises every known field of input, drops unknown ones and
// checks presence, length and format. Empty optional fields are omitted
// from the result.
func (f Form) Clean(input map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(f.Fields))
	var details []string

	for _, fd := range f.Fields {
		v := text.Sanitize(input[fd.Name])
		if v == "" {
			if fd.Required {
				details = append(details, fmt.Sprintf("%s is required", fd.Name))
			}
			continue
		}

		max := fd.Max
		if max == 0 {
			max = 1024
		}
		n := utf8.RuneCountInString(v)
		switch {
		case n < fd.Min:
			details = append(details, fmt.Sprintf("%s must be at least %d characters", fd.Name, fd.Min))
		case n > max:
			details = append(details, fmt.Sprintf("%s must be at most %d characters", fd.Name, max))
		case fd.Email && !validEmail(v):
			details = append(details, fmt.Sprintf("%s must be a valid email address", fd.Name))
		}
		out[fd.Name] = v
	}

	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}
	return out, nil
}

// validEmail accepts a bare address whose domain has a dot.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
