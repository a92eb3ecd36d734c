// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package orc

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// aeadBox is a self-contained ciphertext: a random nonce plus the
// sealed payload. Sealing/opening always uses nil additional data,
// since every blob this package encrypts (a StripeEncryptionGroup or a
// file-statistics subtree) is already unambiguously framed by its
// surrounding stripe/file footer.
type aeadBox struct {
	Nonce   []byte
	Payload []byte
}

func seal(aead cipher.AEAD, src []byte) (*aeadBox, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("orc: generating nonce: %w", err)
	}
	return &aeadBox{
		Nonce:   nonce,
		Payload: aead.Seal(nil, nonce, src, nil),
	}, nil
}

func (b *aeadBox) open(aead cipher.AEAD) ([]byte, error) {
	if len(b.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("orc: invalid nonce size %d", len(b.Nonce))
	}
	return aead.Open(b.Payload[:0:0], b.Nonce, b.Payload, nil)
}

// EncryptionGroup is a set of node ids sharing one data-encryption key
// (DEK). Groups are disjoint and closed under descendants: if a node
// is in a group, every descendant of that node is too.
type EncryptionGroup struct {
	// ID is a random, opaque identifier for this group, written into
	// the group's file-footer entry. Groups appear in the footer in the
	// order they were passed to NewEncryptionInfo, not by ID.
	ID uuid.UUID
	// Nodes lists every node id covered by this group.
	Nodes []NodeID
	// IntermediateKeyMetadata is opaque, user-supplied bytes identifying
	// the intermediate (key-encrypting) key; it is copied verbatim into
	// each stripe's KeyMetadata and is never interpreted by this
	// package.
	IntermediateKeyMetadata []byte

	dek  []byte
	aead cipher.AEAD
}

// NewEncryptionGroup derives a fresh data-encryption key for nodes and
// constructs the AEAD used to seal every payload belonging to this
// group for the life of the writer.
func NewEncryptionGroup(nodes []NodeID, intermediateKeyMetadata []byte) (*EncryptionGroup, error) {
	dek := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("orc: generating data encryption key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, fmt.Errorf("orc: constructing AEAD: %w", err)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("orc: generating group id: %w", err)
	}
	return &EncryptionGroup{
		ID:                      id,
		Nodes:                   append([]NodeID(nil), nodes...),
		IntermediateKeyMetadata: intermediateKeyMetadata,
		dek:                     dek,
		aead:                    aead,
	}, nil
}

// seal encrypts src (a serialized StripeEncryptionGroup or file
// statistics subtree) for embedding in a stripe or file footer.
func (g *EncryptionGroup) seal(src []byte) ([]byte, error) {
	box, err := seal(g.aead, src)
	if err != nil {
		return nil, err
	}
	return encodeAeadBox(box), nil
}

// open decrypts a payload previously produced by seal, for tests and
// for the optional validation builder.
func (g *EncryptionGroup) open(ciphertext []byte) ([]byte, error) {
	box, err := decodeAeadBox(ciphertext)
	if err != nil {
		return nil, err
	}
	return box.open(g.aead)
}

// encodeAeadBox frames a nonce+payload pair as nonceLen | nonce |
// payload so it can be stored as an opaque byte string without a
// dependency on the wire package's struct framing.
func encodeAeadBox(b *aeadBox) []byte {
	out := make([]byte, 1, 1+len(b.Nonce)+len(b.Payload))
	out[0] = byte(len(b.Nonce))
	out = append(out, b.Nonce...)
	out = append(out, b.Payload...)
	return out
}

func decodeAeadBox(buf []byte) (*aeadBox, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("orc: truncated encrypted payload")
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return nil, fmt.Errorf("orc: truncated encrypted payload nonce")
	}
	return &aeadBox{
		Nonce:   buf[1 : 1+n],
		Payload: buf[1+n:],
	}, nil
}

// EncryptionInfo maps node ids to encryption groups and owns every
// group's DEK and encryptor for the life of a Writer.
type EncryptionInfo struct {
	groups      []*EncryptionGroup
	nodeToGroup map[NodeID]int // index into groups, or absent if unencrypted
}

// NewEncryptionInfo validates that groups are pairwise disjoint and
// builds the node->group lookup used throughout stripe assembly.
// Closure under descendants is the caller's responsibility to arrange:
// it is a property of which NodeIDs are listed, not something this
// constructor can verify without the type tree.
func NewEncryptionInfo(groups []*EncryptionGroup) (*EncryptionInfo, error) {
	info := &EncryptionInfo{
		groups:      groups,
		nodeToGroup: make(map[NodeID]int),
	}
	for gi, g := range groups {
		for _, n := range g.Nodes {
			if prev, ok := info.nodeToGroup[n]; ok {
				return nil, fmt.Errorf("orc: node %d present in both encryption group %d and %d", n, prev, gi)
			}
			info.nodeToGroup[n] = gi
		}
	}
	return info, nil
}

// GroupFor returns the encryption group node belongs to, or nil if
// node is unencrypted.
func (e *EncryptionInfo) GroupFor(node NodeID) *EncryptionGroup {
	if e == nil {
		return nil
	}
	if gi, ok := e.nodeToGroup[node]; ok {
		return e.groups[gi]
	}
	return nil
}

// Groups returns every configured encryption group, in the order
// groups appear in the footer.
func (e *EncryptionInfo) Groups() []*EncryptionGroup {
	if e == nil {
		return nil
	}
	return e.groups
}
