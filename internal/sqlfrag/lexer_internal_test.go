package sqlfrag //nolint:testpackage // exercises the unexported lexer directly

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexerTokenizesKeywordsIdentifiersAndPunctuation(t *testing.T) {
	t.Parallel()

	tokens, err := newLexer("SELECT p0.id FROM orders p0 WHERE p0.id = 1;").tokenize()
	require.NoError(t, err)

	require.Equal(t, TokenKeyword, tokens[0].Type)
	require.Equal(t, "SELECT", tokens[0].Literal)
	require.Equal(t, TokenIdentifier, tokens[1].Type)
	require.Equal(t, "p0", tokens[1].Literal)
	require.Equal(t, TokenDot, tokens[2].Type)
	require.Equal(t, TokenIdentifier, tokens[3].Type)
	require.Equal(t, "id", tokens[3].Literal)
	require.Equal(t, TokenEOF, tokens[len(tokens)-1].Type)
}

func TestLexerHandlesDoubledQuoteEscaping(t *testing.T) {
	t.Parallel()

	tokens, err := newLexer("SELECT 'O''Reilly'").tokenize()
	require.NoError(t, err)

	var found bool

	for _, tok := range tokens {
		if tok.Type == TokenString && tok.Literal == "'O''Reilly'" {
			found = true
		}
	}

	require.True(t, found)
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	t.Parallel()

	_, err := newLexer("SELECT 'unterminated").tokenize()
	require.Error(t, err)
}

func TestLexerMultiCharOperators(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"<>", "!=", "<=", ">="} {
		tokens, err := newLexer("a " + op + " b").tokenize()
		require.NoError(t, err)
		require.Equal(t, TokenOperator, tokens[1].Type)
		require.Equal(t, op, tokens[1].Literal)
	}
}

func TestLexerQuotedIdentifier(t *testing.T) {
	t.Parallel()

	tokens, err := newLexer(`SELECT "weird col" FROM t`).tokenize()
	require.NoError(t, err)
	require.Equal(t, TokenQuotedIdentifier, tokens[1].Type)
	require.Equal(t, `"weird col"`, tokens[1].Literal)
}
