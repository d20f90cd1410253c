package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	g := DefaultGrammar()

	tests := []struct {
		name     string
		text     string
		wantTags []string
		check    func(t *testing.T, s *Set)
	}{
		{
			name:     "single chan",
			text:     "chan!('d', p)",
			wantTags: []string{"chan"},
			check: func(t *testing.T, s *Set) {
				require.Len(t, s.Get("chan"), 1)
				assert.Equal(t, Invocation{Tag: "chan", Label: "d", Payload: "p"}, s.Get("chan")[0])
			},
		},
		{
			name:     "case and whitespace tolerant",
			text:     `CHAN! (  "data" ,   workers  )`,
			wantTags: []string{"chan"},
			check: func(t *testing.T, s *Set) {
				assert.Equal(t, "data", s.Get("chan")[0].Label)
				assert.Equal(t, "workers", s.Get("chan")[0].Payload)
			},
		},
		{
			name:     "declaration order not source order",
			text:     "event!('ui', updates) && own!('mem', alloc)",
			wantTags: []string{"own", "event"},
		},
		{
			name:     "instances kept in source order",
			text:     "safe!('a', x) safe!('b', y)",
			wantTags: []string{"safe"},
			check: func(t *testing.T, s *Set) {
				invs := s.Get("safe")
				require.Len(t, invs, 2)
				assert.Equal(t, "a", invs[0].Label)
				assert.Equal(t, "b", invs[1].Label)
				assert.Equal(t, 2, s.Count())
			},
		},
		{
			name:     "no annotations",
			text:     "plain text",
			wantTags: []string{},
		},
		{
			name:     "unknown tag ignored",
			text:     "spawn!('x', y)",
			wantTags: []string{},
		},
		{
			name:     "tag must start a word",
			text:     "mychan!('x', y)",
			wantTags: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := g.Extract(tt.text)
			assert.Equal(t, tt.wantTags, s.Tags())
			assert.Equal(t, len(tt.wantTags), s.Len())
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestExtractSparse(t *testing.T) {
	s := DefaultGrammar().Extract("chan!('d', p)")
	assert.False(t, s.Has("own"))
	assert.Nil(t, s.Get("own"))
	assert.Equal(t, []string{"chan"}, s.Tags())
}

// Payloads end at the first closing parenthesis. This pins the behavior so
// a change to the rule is a deliberate one.
func TestExtractUnbalancedParenthesesLimitation(t *testing.T) {
	s := DefaultGrammar().Extract("chan!('d', f(x))")
	require.True(t, s.Has("chan"))
	assert.Equal(t, "f(x", s.Get("chan")[0].Payload)

	s = DefaultGrammar().Extract("own!('m', g(a, b)) event!('e', h)")
	assert.Equal(t, "g(a, b", s.Get("own")[0].Payload)
	assert.Equal(t, "h", s.Get("event")[0].Payload)
}

func TestExtractIdempotent(t *testing.T) {
	g := DefaultGrammar()
	inputs := []string{
		"chan!('data_pipeline', concurrent_processing)",
		"own!( \"memory_safe\" , allocation )",
		"async!('api_calls', parallel) && safe!('user_data', validation)",
		"Reactive!('ui', a + b * c)",
	}
	for _, in := range inputs {
		for _, inv := range g.Extract(in).All() {
			again := g.Extract(inv.String())
			require.Equal(t, 1, again.Count(), inv.String())
			assert.Equal(t, inv, again.All()[0])
		}
	}
}

func TestGrammar(t *testing.T) {
	t.Run("default tags", func(t *testing.T) {
		assert.Equal(t, DefaultTags, DefaultGrammar().Tags())
	})

	t.Run("with adds tag last", func(t *testing.T) {
		g, err := DefaultGrammar().With("spawn")
		require.NoError(t, err)
		assert.Equal(t, "spawn", g.Tags()[len(g.Tags())-1])
		assert.True(t, g.Extract("spawn!('w', job)").Has("spawn"))
		assert.False(t, DefaultGrammar().Recognizes("spawn"))
	})

	t.Run("rejects duplicates and bad names", func(t *testing.T) {
		_, err := NewGrammar("chan", "chan")
		assert.Error(t, err)
		_, err = NewGrammar("bad tag")
		assert.Error(t, err)
		_, err = DefaultGrammar().With("own")
		assert.Error(t, err)
	})
}

func TestSetSubset(t *testing.T) {
	s := DefaultGrammar().Extract("reactive!('r', 1) chan!('c', 2) own!('o', 3)")
	sub := s.Subset("reactive", "chan", "async")
	assert.Equal(t, []string{"chan", "reactive"}, sub.Tags())
	assert.Equal(t, 3, s.Len())

	built := NewSet(Invocation{Tag: "b"}, Invocation{Tag: "a"}, Invocation{Tag: "b"})
	assert.Equal(t, []string{"b", "a"}, built.Tags())
	assert.Equal(t, 3, built.Count())

	var empty *Set
	assert.Equal(t, []string{}, empty.Tags())
	assert.Equal(t, 0, empty.Len())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "chan! (Go-style channel concurrency)", Describe("chan"))
	assert.Equal(t, "spawn!", Describe("spawn"))
}
