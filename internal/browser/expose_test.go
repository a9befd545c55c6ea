// internal/browser/expose_test.go
package browser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInvokeExposed(t *testing.T) {
	s := &Session{logger: zaptest.NewLogger(t)}

	t.Run("Result", func(t *testing.T) {
		res, err := s.invokeExposed("upper", func(p string) (string, error) {
			return strings.ToUpper(p), nil
		}, "gopher")
		require.NoError(t, err)
		assert.Equal(t, "GOPHER", res)
	})

	t.Run("Error", func(t *testing.T) {
		_, err := s.invokeExposed("reject", func(string) (string, error) {
			return "", errors.New("no")
		}, "")
		assert.Error(t, err)
	})

	t.Run("PanicBecomesError", func(t *testing.T) {
		_, err := s.invokeExposed("boom", func(string) (string, error) {
			panic("kaboom")
		}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})
}

func TestExposeShimEncoding(t *testing.T) {
	// Function names and payloads travel through jsonEncode into JS source;
	// quoting must hold up.
	shim := fmt.Sprintf(exposeShimJS, jsonEncode(`odd"name`))
	assert.Contains(t, shim, `const name = "odd\"name";`)

	var call bindingCall
	require.NoError(t, jsonCodec.UnmarshalFromString(`{"id":7,"payload":"data"}`, &call))
	assert.EqualValues(t, 7, call.ID)
	assert.Equal(t, "data", call.Payload)
}
