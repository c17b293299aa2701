package parse

const signaturePrefixLen = 100

// MarkDuplicates flags every message whose (timestamp, sender, first 100
// characters of body) signature already appeared earlier in msgs. The first
// occurrence is left as is; flags set by the explicit duplicate marker are
// never cleared.
func MarkDuplicates(msgs []Message) {
	seen := make(map[string]struct{}, len(msgs))
	for i := range msgs {
		sig := signature(&msgs[i])
		if _, ok := seen[sig]; ok {
			msgs[i].Duplicate = true
			continue
		}
		seen[sig] = struct{}{}
	}
}

func signature(m *Message) string {
	body := []rune(m.Body())
	if len(body) > signaturePrefixLen {
		body = body[:signaturePrefixLen]
	}
	return m.Timestamp + "|" + m.Sender + "|" + string(body)
}

// ResolveParents sets Parent on every message to the line of the nearest
// earlier message with a strictly smaller indentation level. Messages at
// level 0 never get a parent.
//
// This is a backward scan done with a monotonic stack: a message whose
// level is >= the current one can never be the answer for anything later,
// because the current message is both nearer and at most as deep.
func ResolveParents(msgs []Message) {
	var stack []int // indexes into msgs, strictly increasing indent
	for i := range msgs {
		lvl := msgs[i].Indent
		for len(stack) > 0 && msgs[stack[len(stack)-1]].Indent >= lvl {
			stack = stack[:len(stack)-1]
		}
		msgs[i].Parent = nil
		if len(stack) > 0 {
			parent := msgs[stack[len(stack)-1]].Line
			msgs[i].Parent = &parent
		}
		stack = append(stack, i)
	}
}
