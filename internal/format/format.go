// Package format turns sanitized reply text into render-agnostic blocks.
//
// Format is a pure function of its input. It only ever reads the flat reply
// string; blocks are never fed back into it.
package format

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type Kind int

const (
	Paragraph Kind = iota
	Heading
	OrderedItem
	BulletItem
	SubLabel
)

func (k Kind) String() string {
	switch k {
	case Heading:
		return "heading"
	case OrderedItem:
		return "ordered-item"
	case BulletItem:
		return "bullet-item"
	case SubLabel:
		return "sub-label"
	default:
		return "paragraph"
	}
}

// Span is a run of text inside a block, emphasized when Bold is set.
type Span struct {
	Text string
	Bold bool
}

// Block is one renderable line of a reply.
type Block struct {
	Kind Kind
	// Section is the index of the blank-line separated section holding the block.
	Section int
	// Level is the heading level (1-3) for headings.
	Level int
	// Number is the literal list number for ordered items.
	Number string
	Spans  []Span
}

// Text returns the block content without emphasis.
func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

var (
	headingPrefix = regexp.MustCompile(`^(#{1,3})\s+`)
	orderedPrefix = regexp.MustCompile(`^(\d+)\.\s*`)
	bulletPrefix  = regexp.MustCompile(`^[•\-*]\s+`)
	boldSpan      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
)

// Format splits text into sections and lines and classifies every line.
func Format(text string) []Block {
	var blocks []Block
	section := 0
	for _, raw := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if utf8.RuneCountInString(line) < 2 {
				continue
			}
			b := classify(line)
			b.Section = section
			blocks = append(blocks, b)
		}
		section++
	}

	if len(blocks) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			blocks = append(blocks, Block{Kind: Paragraph, Spans: Spans(trimmed)})
		}
	}
	return blocks
}

func classify(line string) Block {
	if m := headingPrefix.FindStringSubmatch(line); m != nil {
		return Block{
			Kind:  Heading,
			Level: len(m[1]),
			Spans: Spans(line[len(m[0]):]),
		}
	}
	if m := orderedPrefix.FindStringSubmatch(line); m != nil {
		return Block{
			Kind:   OrderedItem,
			Number: m[1],
			Spans:  Spans(line[len(m[0]):]),
		}
	}
	if m := bulletPrefix.FindString(line); m != "" {
		return Block{
			Kind:  BulletItem,
			Spans: Spans(line[len(m):]),
		}
	}
	if strings.HasSuffix(line, ":") {
		return Block{Kind: SubLabel, Spans: Spans(line)}
	}
	return Block{Kind: Paragraph, Spans: Spans(line)}
}

// Spans splits text into plain and bold runs on paired "**" delimiters,
// left to right, without nesting.
func Spans(text string) []Span {
	var spans []Span
	last := 0
	for _, m := range boldSpan.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			spans = append(spans, Span{Text: text[last:m[0]]})
		}
		spans = append(spans, Span{Text: text[m[2]:m[3]], Bold: true})
		last = m[1]
	}
	if last < len(text) {
		spans = append(spans, Span{Text: text[last:]})
	}
	return spans
}
