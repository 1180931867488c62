// Package codec encodes and decodes the compact notification sentence
// the server stores in place of structured actor/action/title fields.
//
// The format is three length-prefixed fields joined by '#':
//
//	<len(actor)>#<actor>#<len(action)>#<action>#<len(title)>#<title>
//
// Lengths count runes. Because each field is read by its declared length
// rather than by splitting on the delimiter, field values may contain '#'.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const delimiter = '#'

// ErrMalformed is returned when an input is not a valid encoded message.
var ErrMalformed = errors.New("malformed notification message")

// Message is the structured form of an encoded notification sentence.
type Message struct {
	Actor  string
	Action string
	Title  string
}

// String renders the message as display text.
func (m Message) String() string {
	return strings.Join([]string{m.Actor, m.Action, m.Title}, " ")
}

// Encode builds the compact form of a message.
func Encode(actor, action, title string) string {
	var b strings.Builder
	for i, field := range []string{actor, action, title} {
		if i > 0 {
			b.WriteByte(delimiter)
		}
		b.WriteString(strconv.Itoa(utf8.RuneCountInString(field)))
		b.WriteByte(delimiter)
		b.WriteString(field)
	}
	return b.String()
}

// Decode parses an encoded message. Any deviation from the format yields
// an error wrapping ErrMalformed; Decode never panics on bad input.
func Decode(input string) (Message, error) {
	var fields [3]string
	rest := input

	for i := range fields {
		if i > 0 {
			if rest == "" || rest[0] != delimiter {
				return Message{}, fmt.Errorf("%w: missing delimiter before field %d", ErrMalformed, i+1)
			}
			rest = rest[1:]
		}

		field, remaining, err := readField(rest)
		if err != nil {
			return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i+1, err)
		}
		fields[i] = field
		rest = remaining
	}

	if rest != "" {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}

	return Message{Actor: fields[0], Action: fields[1], Title: fields[2]}, nil
}

// readField consumes "<n>#<n runes>" from the front of s.
func readField(s string) (string, string, error) {
	sep := strings.IndexByte(s, delimiter)
	if sep <= 0 {
		return "", "", errors.New("missing length prefix")
	}

	digits := s[:sep]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("non-numeric length %q", digits)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", "", fmt.Errorf("invalid length %q: %v", digits, err)
	}

	body := s[sep+1:]
	end := 0
	for count := 0; count < n; count++ {
		if end >= len(body) {
			return "", "", fmt.Errorf("declared length %d exceeds field", n)
		}
		_, size := utf8.DecodeRuneInString(body[end:])
		end += size
	}

	return body[:end], body[end:], nil
}

// Render returns display text for a notification message. Encoded
// messages are expanded; anything that does not decode is returned as is.
func Render(raw string) string {
	msg, err := Decode(raw)
	if err != nil {
		return raw
	}
	return msg.String()
}
