package config

const redacted = "[REDACTED]"

// Secret holds a credential loaded from config or the environment (API keys, DSNs, wallet keys).
// Every printing and marshalling path masks it; only Reveal returns the value.
type Secret string

// IsSet reports whether a value was configured
func (s Secret) IsSet() bool { return s != "" }

// Reveal returns the plain value for the code that actually needs it
func (s Secret) Reveal() string { return string(s) }

func (s Secret) masked() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.masked() }

// GoString covers %#v
func (s Secret) GoString() string { return `"` + s.masked() + `"` }

func (s Secret) MarshalYAML() (interface{}, error) { return s.masked(), nil }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(s.GoString()), nil }
