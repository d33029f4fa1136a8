// Package secretstore 基于 Badger 的落盘密钥库
// 用于保存钱包私钥等敏感数据；加密由 Badger 的 value log + key registry 提供
package secretstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// 约定的键名
const (
	KeyWalletPrivateKey = "wallet.private_key" // 钱包私钥（hex）
	KeyWalletAddress    = "wallet.address"     // 钱包地址
)

// EnvEncryptionKey 密钥库加密 key 的环境变量名（32 字节 hex，可带 0x 前缀）
const EnvEncryptionKey = "GOZORA_STORE_KEY"

// KeyFromEnv 从环境变量读取密钥库的加密 key
// 未设置时返回 (nil, nil)，此时密钥库明文存储（仅限开发环境）
// 写入和读取密钥库的进程必须用同一个 key，否则读取方打不开
func KeyFromEnv() ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(EnvEncryptionKey))
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s 必须是 hex: %w", EnvEncryptionKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s 解码后必须是 32 字节，实际 %d", EnvEncryptionKey, len(key))
	}
	return key, nil
}

// Store Badger KV 封装
type Store struct {
	db *badger.DB
}

// OpenOptions 打开选项
type OpenOptions struct {
	Path          string // 数据目录
	EncryptionKey []byte // 32 字节；为空时不加密（不推荐）
	ReadOnly      bool   // 只读打开
}

// Open 打开密钥库
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: 路径不能为空")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: 打开失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭密钥库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetString 读取字符串值；第二个返回值表示键是否存在
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: 未打开")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: 键不能为空")
	}

	var out string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

// SetString 写入字符串值
func (s *Store) SetString(key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: 未打开")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: 键不能为空")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(value))
	})
}

// Delete 删除键
func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: 未打开")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(strings.TrimSpace(key)))
	})
}
