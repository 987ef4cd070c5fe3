package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/krau/emotagger/hub"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/decoder"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/sugarme/tokenizer/processor"
	"github.com/tidwall/gjson"
)

const (
	TokenizerFile       = "tokenizer.json"
	VocabFile           = "vocab.txt"
	tokenizerConfigFile = "tokenizer_config.json"
)

// Tokenizer turns text into fixed-length model inputs.
type Tokenizer interface {
	// Encode returns token ids and the attention mask, both exactly seqLen long.
	Encode(text string, seqLen int) (ids, mask []int64, err error)
}

// LoadTokenizer builds the tokenizer shipped in the artifact directory.
// A full tokenizer.json wins over a bare WordPiece vocab.txt.
func LoadTokenizer(art hub.Artifacts) (Tokenizer, error) {
	if p := filepath.Join(art.Dir, TokenizerFile); exists(p) {
		tk, err := pretrained.FromFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", TokenizerFile, err)
		}
		return newPipeline(tk, "<pad>", "[PAD]"), nil
	}
	if p := filepath.Join(art.Dir, VocabFile); exists(p) {
		return NewWordPiece(p, lowercase(art.Dir))
	}
	return nil, fmt.Errorf("no %s or %s in %s", TokenizerFile, VocabFile, art.Dir)
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// lowercase reads do_lower_case from tokenizer_config.json, defaulting to true.
func lowercase(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, tokenizerConfigFile))
	if err != nil {
		return true
	}
	if v := gjson.GetBytes(data, "do_lower_case"); v.Exists() {
		return v.Bool()
	}
	return true
}

// NewWordPiece assembles a BERT pipeline around a vocab.txt file.
func NewWordPiece(vocabPath string, lower bool) (Tokenizer, error) {
	model, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	tk := tokenizer.NewTokenizer(model)

	ids := make(map[string]int, 4)
	for _, name := range []string{"[CLS]", "[SEP]", "[PAD]", "[UNK]"} {
		id, ok := tk.TokenToId(name)
		if !ok {
			return nil, fmt.Errorf("vocab has no %s token", name)
		}
		ids[name] = id
	}

	tk.WithNormalizer(normalizer.NewBertNormalizer(true, lower, true, lower))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: ids["[SEP]"], Value: "[SEP]"},
		processor.PostToken{Id: ids["[CLS]"], Value: "[CLS]"},
	))
	tk.WithDecoder(decoder.DefaultWordpieceDecoder())
	return newPipeline(tk, "[PAD]"), nil
}

type pipeline struct {
	tk    *tokenizer.Tokenizer
	padID int64
}

// newPipeline uses the first pad token the vocabulary knows, or id 0.
func newPipeline(tk *tokenizer.Tokenizer, padTokens ...string) *pipeline {
	p := &pipeline{tk: tk}
	for _, name := range padTokens {
		if id, ok := tk.TokenToId(name); ok {
			p.padID = int64(id)
			break
		}
	}
	return p
}

func (p *pipeline) Encode(text string, seqLen int) ([]int64, []int64, error) {
	if seqLen <= 0 {
		return nil, nil, errors.New("sequence length must be positive")
	}
	en, err := p.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, err
	}
	ids := en.Ids
	if len(ids) > seqLen {
		// Keep the closing special token when the sequence is cut.
		last := len(ids) - 1
		if seqLen > 1 && last < len(en.SpecialTokenMask) && en.SpecialTokenMask[last] == 1 {
			ids = append(ids[:seqLen-1:seqLen-1], ids[last])
		} else {
			ids = ids[:seqLen]
		}
	}
	outIDs, mask := pad(ids, seqLen, p.padID)
	return outIDs, mask, nil
}

// pad right-pads ids to seqLen and builds the matching mask.
func pad(ids []int, seqLen int, padID int64) ([]int64, []int64) {
	outIDs := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	for i := range outIDs {
		if i < len(ids) {
			outIDs[i] = int64(ids[i])
			mask[i] = 1
		} else {
			outIDs[i] = padID
		}
	}
	return outIDs, mask
}
