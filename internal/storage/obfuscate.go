package storage

import "context"

// Obfuscated wraps a KV so values are XOR-scrambled with a repeating key
// before they reach the driver and unscrambled on the way out.
//
// This is reversible obfuscation, NOT encryption. It only keeps values from
// being readable at a glance; anyone holding the key (or the binary that
// embeds it) can invert it. Do not rely on it for confidentiality.
func Obfuscated(inner KV, key []byte) KV {
	if len(key) == 0 {
		return inner
	}
	return &obfuscatedKV{inner: inner, key: key}
}

type obfuscatedKV struct {
	inner KV
	key   []byte
}

// xorScramble is its own inverse: applying it twice yields the input.
func (o *obfuscatedKV) xorScramble(v string) string {
	b := []byte(v)
	for i := range b {
		b[i] ^= o.key[i%len(o.key)]
	}
	return string(b)
}

func (o *obfuscatedKV) Write(ctx context.Context, key, value string) error {
	return o.inner.Write(ctx, key, o.xorScramble(value))
}

func (o *obfuscatedKV) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := o.inner.Read(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return o.xorScramble(v), true, nil
}

func (o *obfuscatedKV) Delete(ctx context.Context, key string) error {
	return o.inner.Delete(ctx, key)
}

func (o *obfuscatedKV) ContainsKey(ctx context.Context, key string) (bool, error) {
	return o.inner.ContainsKey(ctx, key)
}

func (o *obfuscatedKV) Close() error { return o.inner.Close() }
