package textnorm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlovenianNormalize(t *testing.T) {
	n := NewSlovenian()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases and drops stopwords", "Kdaj začne Uredba veljati?", "začne uredba veljati"},
		{"keeps digits", "Člen 113 in točka 3", "člen 113 točka 3"},
		{"drops mixed alphanumerics", "Priloga III2a sistem", "priloga sistem"},
		{"punctuation splits tokens", "visoko-tvegani sistemi, (UI)", "visoko tvegani sistemi ui"},
		{"only stopwords", "in ali pa", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestSlovenianNormalizeComposedForms(t *testing.T) {
	n := NewSlovenian()
	// "č" written as c + combining caron must normalize like the precomposed rune.
	assert.Equal(t, "člen", n.Normalize("C\u030clen"))
}

func TestSlovenianConcurrentUse(t *testing.T) {
	n := NewSlovenian()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "umetna inteligenca", n.Normalize("Umetna inteligenca"))
		}()
	}
	wg.Wait()
}

func TestID(t *testing.T) {
	assert.Equal(t, "sl-lower-stopwords-v1", ID(NewSlovenian()))
	assert.Equal(t, "", ID(Func(func(s string) string { return s })))
}
