package tracking

import (
	"context"

	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

// SetWallet records the connected wallet (empty when disconnected). While
// tracking is active, a newly connected wallet is identified and reported
// with "Wallet Connection Made"; a disconnect reports "Wallet Connection
// Broken" with the wallet that went away.
func (d *Dispatcher) SetWallet(ctx context.Context, pubkey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pubkey = pubkey
	d.syncWallet(ctx)
}

// Wallet returns the currently connected wallet.
func (d *Dispatcher) Wallet() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pubkey
}

// syncWallet emits at most one transition event comparing the current wallet
// with the last one seen while active.
func (d *Dispatcher) syncWallet(ctx context.Context) {
	if !d.consent || d.state != Initialized {
		return
	}
	switch {
	case d.pubkey != "" && d.pubkey != d.lastPubkey:
		d.identify(ctx, d.pubkey)
		d.track(ctx, event.ActionWalletConnectionMade, event.Attributes{
			event.KeyCategory: string(event.CategoryGlobal),
			event.KeyPubkey:   d.pubkey,
		})
	case d.pubkey == "" && d.lastPubkey != "":
		d.identity.Store("")
		d.track(ctx, event.ActionWalletConnectionBroken, event.Attributes{
			event.KeyCategory: string(event.CategoryGlobal),
			event.KeyPubkey:   d.lastPubkey,
		})
	}
	d.lastPubkey = d.pubkey
}
