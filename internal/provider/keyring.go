package provider

import (
	"sync"
)

// KeyRing 记录每个账户选择的 API key，未选择时回退到服务端默认 key
type KeyRing struct {
	mu         sync.RWMutex
	defaultKey string
	keys       map[string]string
}

func NewKeyRing(defaultKey string) *KeyRing {
	return &KeyRing{defaultKey: defaultKey, keys: make(map[string]string)}
}

func (k *KeyRing) Key(accountID string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[accountID]; ok {
		return key, true
	}
	return k.defaultKey, k.defaultKey != ""
}

func (k *KeyRing) HasKey(accountID string) bool {
	_, ok := k.Key(accountID)
	return ok
}

func (k *KeyRing) Set(accountID, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[accountID] = key
}

// Clear 删除账户的 key；使用的是默认 key 时同时停用默认 key，直到重新设置
func (k *KeyRing) Clear(accountID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[accountID]; ok {
		delete(k.keys, accountID)
		return
	}
	k.defaultKey = ""
}
