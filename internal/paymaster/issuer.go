package paymaster

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/compose-network/gasless/internal/errnorm"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	signPath         = "/sign"
	requestIDHeader  = "X-Request-ID"
	issuerService    = "paymaster signer"
	defaultIssuerTTL = 15 * time.Second
)

// IssueRequest asks the issuer to sponsor gas for Payer in Token.
type IssueRequest struct {
	Payer      common.Address
	Token      common.Address
	ValidUntil uint64
	ValidAfter uint64
	Activation bool
}

type signRequest struct {
	PayerAddress string `json:"payerAddress"`
	TokenAddress string `json:"tokenAddress"`
	ValidUntil   uint64 `json:"validUntil"`
	ValidAfter   uint64 `json:"validAfter"`
	IsActivation bool   `json:"isActivation,omitempty"`
}

type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Issuer is the HTTP client for the off-chain authorization service.
type Issuer struct {
	baseURL string
	client  *http.Client
}

func NewIssuer(baseURL string, client *http.Client) *Issuer {
	if client == nil {
		client = &http.Client{Timeout: defaultIssuerTTL}
	}
	return &Issuer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Authorize requests a fresh signature and returns the complete authorization.
// Authorizations are never cached.
func (i *Issuer) Authorize(ctx context.Context, req IssueRequest) (Authorization, error) {
	sig, err := i.Sign(ctx, req)
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{
		Token:      req.Token,
		Payer:      req.Payer,
		ValidUntil: req.ValidUntil,
		ValidAfter: req.ValidAfter,
		Activation: req.Activation,
		Signature:  sig,
	}, nil
}

// Sign calls POST {baseURL}/sign and returns the issuer's signature bytes.
func (i *Issuer) Sign(ctx context.Context, req IssueRequest) ([]byte, error) {
	endpoint := i.baseURL + signPath
	body, err := json.Marshal(signRequest{
		PayerAddress: req.Payer.Hex(),
		TokenAddress: req.Token.Hex(),
		ValidUntil:   req.ValidUntil,
		ValidAfter:   req.ValidAfter,
		IsActivation: req.Activation,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal sign request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create http request")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)

	log := logger.WithFields(logger.Fields{"requestId": requestID, "payer": req.Payer.Hex(), "token": req.Token.Hex()})
	log.Debug("requesting paymaster authorization")

	resp, err := i.client.Do(httpReq)
	if err != nil {
		if unreachable := errnorm.Unreachable(issuerService, i.baseURL, err); unreachable != err {
			return nil, unreachable
		}
		return nil, errors.Wrap(err, "call paymaster signer")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read paymaster signer response")
	}

	var out signResponse
	decodeErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil {
			if msg := firstNonEmpty(out.Error, out.Message); msg != "" {
				return nil, errors.Errorf("paymaster signer rejected request: %s", msg)
			}
		}
		return nil, errors.Errorf("non-200 status from paymaster signer: %d, body: %s", resp.StatusCode, string(respBody))
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "unmarshal paymaster signer response")
	}
	if out.Signature == "" {
		return nil, errors.New("paymaster signer response missing signature")
	}

	sig, err := hexutil.Decode(out.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "decode paymaster signature")
	}
	log.WithField("validUntil", req.ValidUntil).Debug("paymaster authorization issued")
	return sig, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
