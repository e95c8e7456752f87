package crypto

import (
	"bytes"
	"context"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/clearsign"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

var clearsignHeader = []byte("-----BEGIN PGP SIGNED MESSAGE-----")

var ErrNoSignedBlock = errors.New("no clearsigned block in message")

type pgpAgent struct {
	keyring openpgp.EntityList
	log     logger.Logger
}

// NewAgent loads the configured keyring. Without one, messages are never
// sent for verification.
func NewAgent(cfg *config.CryptoConfig, log logger.Logger) (interfaces.CryptoAgent, error) {
	if cfg == nil || cfg.KeyringPath == "" {
		return NewNoopAgent(), nil
	}

	f, err := os.Open(cfg.KeyringPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pgp keyring")
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pgp keyring")
	}
	log.Infof("Loaded %d pgp keys from %s", len(keyring), cfg.KeyringPath)
	return NewPGPAgent(keyring, log), nil
}

func NewPGPAgent(keyring openpgp.EntityList, log logger.Logger) interfaces.CryptoAgent {
	return &pgpAgent{keyring: keyring, log: log}
}

func (a *pgpAgent) NeedsVerification(message *models.Message) bool {
	return bytes.Contains(signedContent(message), clearsignHeader)
}

func (a *pgpAgent) Verify(ctx context.Context, message *models.Message) (*interfaces.VerificationResult, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CryptoAgent.Verify")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, message.AccountID)
	span.LogKV("uid", message.UID)

	block, _ := clearsign.Decode(signedContent(message))
	if block == nil {
		tracing.TraceErr(span, ErrNoSignedBlock)
		return nil, ErrNoSignedBlock
	}

	signer, err := openpgp.CheckDetachedSignature(a.keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body)
	if err != nil {
		err = errors.Wrap(err, "signature check failed")
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &interfaces.VerificationResult{Verified: true}
	for name := range signer.Identities {
		result.Signer = name
		break
	}
	span.SetTag("signer", result.Signer)
	return result, nil
}

func signedContent(message *models.Message) []byte {
	if message.BodyText != "" {
		return []byte(message.BodyText)
	}
	return message.Raw
}

type noopAgent struct{}

func NewNoopAgent() interfaces.CryptoAgent {
	return noopAgent{}
}

func (noopAgent) NeedsVerification(*models.Message) bool {
	return false
}

func (noopAgent) Verify(context.Context, *models.Message) (*interfaces.VerificationResult, error) {
	return &interfaces.VerificationResult{}, nil
}
