package boundary

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"
	qrcode "github.com/skip2/go-qrcode"
)

// InvitePrefix is the URL scheme for a pairing invite. Pairing itself
// is out of core scope (spec §3, §4.5: trusted peers are added through
// "an explicit pairing act outside this core's scope") — Invite is a
// stateless encode/verify helper an embedder's pairing UI can call,
// not a core component that tracks pairing state.
const InvitePrefix = "cardmind://"

// DefaultInviteExpiry is how long an invite stays valid before
// ParseInvite refuses it.
const DefaultInviteExpiry = 24 * time.Hour

// Invite carries what a new device needs to dial and verify a host
// it has never seen before: its peer id, a couple of reachable
// addresses, and a signature proving the invite came from that host's
// own key rather than from whoever printed the QR code.
type Invite struct {
	PeerID    string   `json:"p"`
	Addresses []string `json:"a"`
	PublicKey []byte   `json:"k"`
	CreatedAt int64    `json:"c"`
	ExpiresAt int64    `json:"e"`
	Signature []byte   `json:"s"`
}

// CreateInvite signs a fresh invite for h, valid for expiry.
func CreateInvite(h host.Host, expiry time.Duration) (*Invite, error) {
	now := time.Now()

	addrs := h.Addrs()
	addrStrs := make([]string, 0, 2)
	for _, a := range addrs {
		str := a.String()
		if !strings.Contains(str, "127.0.0.1") && !strings.Contains(str, "::1") {
			addrStrs = append(addrStrs, str)
			if len(addrStrs) >= 2 {
				break
			}
		}
	}
	if len(addrStrs) == 0 && len(addrs) > 0 {
		addrStrs = append(addrStrs, addrs[0].String())
	}

	pubKey := h.Peerstore().PubKey(h.ID())
	if pubKey == nil {
		return nil, fmt.Errorf("no public key for host")
	}
	pubKeyBytes, err := crypto.MarshalPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}

	inv := &Invite{
		PeerID:    h.ID().String(),
		Addresses: addrStrs,
		PublicKey: pubKeyBytes,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(expiry).Unix(),
	}

	privKey := h.Peerstore().PrivKey(h.ID())
	if privKey == nil {
		return nil, fmt.Errorf("no private key for host")
	}
	sig, err := privKey.Sign(inv.signableData())
	if err != nil {
		return nil, fmt.Errorf("signing invite: %w", err)
	}
	inv.Signature = sig

	return inv, nil
}

func (i *Invite) signableData() []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d",
		i.PeerID, strings.Join(i.Addresses, ","), i.CreatedAt, i.ExpiresAt))
}

// Encode serializes the invite to a "cardmind://"-prefixed string
// short enough to fit a QR code or be read aloud over the phone.
func (i *Invite) Encode() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return InvitePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// ParseInvite decodes an encoded invite, rejecting it if expired or if
// the signature doesn't verify against the embedded public key.
func ParseInvite(s string) (*Invite, error) {
	if !strings.HasPrefix(s, InvitePrefix) {
		return nil, fmt.Errorf("invalid invite: missing %q prefix", InvitePrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, InvitePrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid invite encoding: %w", err)
	}

	var inv Invite
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("invalid invite payload: %w", err)
	}

	if time.Now().Unix() > inv.ExpiresAt {
		return nil, fmt.Errorf("invite expired")
	}

	pubKey, err := crypto.UnmarshalPublicKey(inv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid invite public key: %w", err)
	}
	valid, err := pubKey.Verify(inv.signableData(), inv.Signature)
	if err != nil || !valid {
		return nil, fmt.Errorf("invite signature does not verify")
	}

	derivedID, err := peer.IDFromPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("deriving peer id from invite key: %w", err)
	}
	if derivedID.String() != inv.PeerID {
		return nil, fmt.Errorf("invite peer id does not match its own key")
	}

	return &inv, nil
}

// ToAddrInfo converts the invite into the libp2p peer.AddrInfo a
// caller dials through transport.Host.Connect.
func (i *Invite) ToAddrInfo() (*peer.AddrInfo, error) {
	peerID, err := peer.Decode(i.PeerID)
	if err != nil {
		return nil, fmt.Errorf("invalid invite peer id: %w", err)
	}

	addrInfo := &peer.AddrInfo{ID: peerID}
	for _, s := range i.Addresses {
		a, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			continue
		}
		addrInfo.Addrs = append(addrInfo.Addrs, a)
	}
	return addrInfo, nil
}

// IsExpired reports whether the invite's expiry has already passed.
func (i *Invite) IsExpired() bool {
	return time.Now().Unix() > i.ExpiresAt
}

// shortCode renders "cardmind://PEERID@ADDR" — short enough to type
// by hand when a camera isn't available to scan the QR.
func (i *Invite) shortCode() string {
	addr := ""
	if len(i.Addresses) > 0 {
		addr = i.Addresses[0]
	}
	return fmt.Sprintf("%s%s@%s", InvitePrefix, i.PeerID, addr)
}

// RenderInviteQR renders the invite's short code as a 256x256 PNG QR
// code, the form meant for display on one device and a camera scan
// from the other.
func RenderInviteQR(i *Invite) ([]byte, error) {
	return qrcode.Encode(i.shortCode(), qrcode.Low, 256)
}

// RenderInviteQRString renders the invite's short code as an ASCII-art
// QR code for terminals with no image display.
func RenderInviteQRString(i *Invite) (string, error) {
	qr, err := qrcode.New(i.shortCode(), qrcode.Low)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}
