package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"ex-paimon/pkg/paimon"

	"github.com/gotd/td/tg"
)

type peerKey struct {
	kind paimon.ConversationType
	id   string
}

// PeerCache remembers the input peers seen in inbound updates so outbound
// requests addressed by conversation can be turned back into RPC peers.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[peerKey]tg.InputPeerClass
}

// NewPeerCache creates an empty peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[peerKey]tg.InputPeerClass)}
}

// RememberEnvelope ingests the users and chats attached to one update.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		if peer := user.AsInputPeer(); peer != nil {
			c.peers[peerKey{paimon.ConversationTypePrivate, strconv.FormatInt(userID, 10)}] = cloneInputPeer(peer)
		}
	}
	for id, chat := range envelope.chatsByID {
		if chat.inputPeer != nil {
			c.peers[peerKey{chat.kind, strconv.FormatInt(id, 10)}] = cloneInputPeer(chat.inputPeer)
		}
	}
}

// RememberConversation stores one explicit conversation-to-peer mapping.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[peerKey{chat.Type, chat.ID}] = cloneInputPeer(peer)
}

// Resolve returns an input peer for conversation. Groups and channels fall
// back to each other because megagroups are reported as groups but keyed by
// channel peers.
func (c *PeerCache) Resolve(conversation paimon.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" {
		return nil, fmt.Errorf("resolve peer: missing conversation id")
	}

	candidates := []paimon.ConversationType{conversation.Type}
	switch conversation.Type {
	case paimon.ConversationTypeGroup:
		candidates = append(candidates, paimon.ConversationTypeChannel)
	case paimon.ConversationTypeChannel:
		candidates = append(candidates, paimon.ConversationTypeGroup)
	case "":
		candidates = []paimon.ConversationType{
			paimon.ConversationTypePrivate,
			paimon.ConversationTypeGroup,
			paimon.ConversationTypeChannel,
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, kind := range candidates {
		if peer, ok := c.peers[peerKey{kind, conversation.ID}]; ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: conversation %s/%s not found", conversation.Type, conversation.ID)
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}
