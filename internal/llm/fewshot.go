package llm

import (
	"fmt"
	"strings"

	"captcha-trainer/internal/models"
)

// Delimiters that precede the final answer in model output
const (
	DelimiterZH = "結果："
	DelimiterEN = "Result:"
)

// DefaultExamples is how many gold-standard examples go into one request
const DefaultExamples = 3

// Language selects the instruction text and answer delimiter
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

const instructionZH = `你是一個精準的驗證碼辨識專家。請依照以下步驟處理圖片：
1. **視覺分析**：簡要描述圖片中的文字顏色、有無扭曲以及背景干擾。
2. **最終輸出**：排除干擾後，直接輸出辨識出的文字（含大小寫），嚴禁任何空格。

範例格式：
[範例圖片] -> 描述：已校正範例。結果：A7b2
`

const instructionEN = `You are a precise CAPTCHA recognition expert. Process the image in two steps:
1. **Visual analysis**: briefly describe the text colour, any distortion and the background noise.
2. **Final output**: ignoring the noise, output the recognised characters exactly (case sensitive) with no spaces.

Example format:
[example image] -> Description: corrected example. Result: A7b2
`

// Assembler builds few-shot recognition payloads
type Assembler struct {
	lang Language
}

// NewAssembler creates an assembler; unknown languages fall back to zh
func NewAssembler(lang Language) *Assembler {
	if lang != LanguageEN {
		lang = LanguageZH
	}
	return &Assembler{lang: lang}
}

// Language returns the configured prompt language
func (a *Assembler) Language() Language {
	return a.lang
}

// Delimiter returns the token that precedes the answer
func (a *Assembler) Delimiter() string {
	if a.lang == LanguageEN {
		return DelimiterEN
	}
	return DelimiterZH
}

// Instruction returns the fixed two-step instruction block
func (a *Assembler) Instruction() string {
	if a.lang == LanguageEN {
		return instructionEN
	}
	return instructionZH
}

// ExampleTurn is the synthetic answer paired with an example image
func (a *Assembler) ExampleTurn(label string) string {
	if a.lang == LanguageEN {
		return fmt.Sprintf("Description: corrected example. %s %s", DelimiterEN, label)
	}
	return fmt.Sprintf("描述：已校正範例。%s%s", DelimiterZH, label)
}

// Build assembles instruction, examples and target. examples are expected
// most-recent-first, as the label stores return them; they are emitted
// oldest-first so the newest correction sits right before the target.
func (a *Assembler) Build(examples []models.GoldStandardExample, target []byte) []Part {
	parts := make([]Part, 0, 2+2*len(examples))
	parts = append(parts, TextPart(a.Instruction()))
	for i := len(examples) - 1; i >= 0; i-- {
		ex := examples[i]
		parts = append(parts, ImagePart(ex.Image), TextPart(a.ExampleTurn(ex.Text)))
	}
	return append(parts, ImagePart(target))
}

// ExtractAfterDelimiter returns the text after the last occurrence of any
// delimiter, trimmed. Without a delimiter the whole trimmed text is the answer.
func ExtractAfterDelimiter(raw string, delimiters ...string) string {
	cut, width := -1, 0
	for _, d := range delimiters {
		if d == "" {
			continue
		}
		if i := strings.LastIndex(raw, d); i > cut {
			cut, width = i, len(d)
		}
	}
	if cut < 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[cut+width:])
}
