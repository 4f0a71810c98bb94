package embedding

import (
	"context"
	"hash/fnv"

	"neurodb/internal/adapter/analyzer"
)

const DefaultHashDimension = 384

// HashProvider is an offline provider based on the hashing trick: every token
// is hashed into one of dimension buckets with a hash-derived sign, and the
// bucket counts are mean-pooled over the token count. Texts sharing words end
// up with a positive cosine similarity.
type HashProvider struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashProvider{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	tokens := p.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	h := fnv.New64a()
	for _, token := range tokens {
		h.Reset()
		h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimension))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	n := float32(len(tokens))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

func (p *HashProvider) Dimension() int {
	return p.dimension
}

func (p *HashProvider) ModelName() string {
	return "local-hash"
}
