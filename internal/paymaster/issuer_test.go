package paymaster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/compose-network/gasless/internal/errnorm"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIssuerAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sign", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, testPayer.Hex(), body["payerAddress"])
		require.Equal(t, testToken.Hex(), body["tokenAddress"])
		require.EqualValues(t, 1_700_003_600, body["validUntil"])
		require.EqualValues(t, 1_699_999_940, body["validAfter"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":"0xdeadbeef"}`))
	}))
	defer srv.Close()

	issuer := NewIssuer(srv.URL+"/", nil)
	auth, err := issuer.Authorize(context.Background(), IssueRequest{
		Payer:      testPayer,
		Token:      testToken,
		ValidUntil: 1_700_003_600,
		ValidAfter: 1_699_999_940,
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, auth.Signature)
	require.Equal(t, testPayer, auth.Payer)
	require.Equal(t, uint64(1_700_003_600), auth.ValidUntil)
}

func TestIssuerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"token not whitelisted"}`))
	}))
	defer srv.Close()

	_, err := NewIssuer(srv.URL, nil).Sign(context.Background(), IssueRequest{Payer: testPayer, Token: testToken})
	require.EqualError(t, err, "paymaster signer rejected request: token not whitelisted")
}

func TestIssuerNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := NewIssuer(srv.URL, nil).Sign(context.Background(), IssueRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
	require.Contains(t, err.Error(), "upstream down")
}

func TestIssuerMissingSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewIssuer(srv.URL, nil).Sign(context.Background(), IssueRequest{})
	require.EqualError(t, err, "paymaster signer response missing signature")
}

func TestIssuerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewIssuer(url, nil).Sign(context.Background(), IssueRequest{})
	var unreachable *errnorm.UnreachableError
	require.True(t, errors.As(err, &unreachable))
	// the transport failure stays visible after the endpoint
	require.True(t, strings.HasPrefix(err.Error(), "paymaster signer unreachable at "+url+": "), err.Error())
	require.Contains(t, err.Error(), unreachable.Err.Error())
}
