package chain_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/chain"
)

func appendHandler(tag string) chain.HandlerFunc[[]string] {
	return func(ctx context.Context, subject []string, next chain.Next[[]string]) ([]string, error) {
		return next(ctx, append(subject, tag))
	}
}

func TestChain_RunsHandlersInRegistrationOrder(t *testing.T) {
	c := chain.New[[]string](appendHandler("first"), appendHandler("second"), appendHandler("third"))

	result, err := c.Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, result)
}

func TestChain_OrderIsStableAcrossRuns(t *testing.T) {
	c := chain.New[[]string](appendHandler("a"), appendHandler("b"))

	for i := 0; i < 5; i++ {
		result, err := c.Process(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, result)
	}
}

func TestChain_HandlerErrorShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	failing := chain.HandlerFunc[[]string](func(ctx context.Context, subject []string, next chain.Next[[]string]) ([]string, error) {
		return subject, boom
	})

	c := chain.New[[]string](appendHandler("before"), failing, appendHandler("after"))

	result, err := c.Process(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"before"}, result)
}

func TestChain_HandlerCanPostProcess(t *testing.T) {
	decorating := chain.HandlerFunc[[]string](func(ctx context.Context, subject []string, next chain.Next[[]string]) ([]string, error) {
		result, err := next(ctx, subject)
		if err != nil {
			return result, err
		}
		return append(result, "post"), nil
	})

	c := chain.New[[]string](decorating, appendHandler("inner"))

	result, err := c.Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"inner", "post"}, result)
}

func TestChain_AppendDoesNotMutateReceiver(t *testing.T) {
	base := chain.New[[]string](appendHandler("base"))
	extended := base.Append(appendHandler("extra"))

	require.Equal(t, 1, base.Len())
	require.Equal(t, 2, extended.Len())

	result, err := base.Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"base"}, result)

	result, err = extended.Process(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"base", "extra"}, result)
}

func TestChain_EmptyChainReturnsSubject(t *testing.T) {
	c := chain.New[[]string]()

	result, err := c.Process(context.Background(), []string{"untouched"})
	require.NoError(t, err)
	require.Equal(t, []string{"untouched"}, result)
}
