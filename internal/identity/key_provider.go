package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyProvider is a wallet holding one ECDSA key. Connecting exposes the key's address.
type KeyProvider struct {
	*notifier
	key *ecdsa.PrivateKey
}

func NewKeyProvider(key *ecdsa.PrivateKey) (*KeyProvider, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	return &KeyProvider{notifier: newNotifier(), key: key}, nil
}

func (p *KeyProvider) Address() string {
	return crypto.PubkeyToAddress(p.key.PublicKey).Hex()
}

func (p *KeyProvider) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.set(Identity{Account: p.Address()})
	return nil
}

func (p *KeyProvider) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.set(Identity{})
	return nil
}

// StaticProvider connects to a fixed account. Switch simulates the user picking another account.
type StaticProvider struct {
	*notifier
	mu      sync.Mutex
	account string
}

func NewStaticProvider(account string) *StaticProvider {
	return &StaticProvider{notifier: newNotifier(), account: account}
}

func (p *StaticProvider) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	account := p.account
	p.mu.Unlock()
	p.set(Identity{Account: account})
	return nil
}

func (p *StaticProvider) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.set(Identity{})
	return nil
}

func (p *StaticProvider) Switch(account string) {
	p.mu.Lock()
	p.account = account
	p.mu.Unlock()
	p.set(Identity{Account: account})
}
