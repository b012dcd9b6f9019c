package digest

// Mapper maps matched keywords to the attack category they most often signal.
type Mapper struct {
	mapping map[string]string
}

func NewMapper() *Mapper {
	return &Mapper{
		mapping: map[string]string{
			"override":         "instruction_override",
			"ignore":           "instruction_override",
			"disregard":        "instruction_override",
			"new instructions": "instruction_override",
			"act as":           "role_hijack",
			"roleplay":         "role_hijack",
			"pretend":          "role_hijack",
			"system prompt":    "prompt_leak",
			"jailbreak":        "mode_switch",
			"developer mode":   "mode_switch",
			"unrestricted":     "mode_switch",
			"bypass":           "guard_bypass",
		},
	}
}

// Category returns the category for keyword, or Unclassified.
func (m *Mapper) Category(keyword string) string {
	if c, ok := m.mapping[keyword]; ok {
		return c
	}
	return Unclassified
}
