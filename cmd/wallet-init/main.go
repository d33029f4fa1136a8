// wallet-init 从助记词派生钱包并写入 badger 密钥库
// 用法：
//
//	wallet-init -store data/secrets                 # 从 stdin 读助记词
//	wallet-init -store data/secrets -generate       # 生成新助记词（打印到 stderr，务必抄写备份）
//
// 加密 key 来自环境变量 GOZORA_STORE_KEY（32 字节，hex）；为空则明文存储（仅限开发环境）
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/zorabot/gozora/pkg/secretstore"
)

func main() {
	var (
		storePath = flag.String("store", "data/secrets", "badger 密钥库路径")
		index     = flag.Uint("index", 0, "派生路径索引 (m/44'/60'/0'/0/N)")
		generate  = flag.Bool("generate", false, "生成新助记词而不是从 stdin 读取")
	)
	flag.Parse()

	if err := run(*storePath, *index, *generate); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(storePath string, index uint, generate bool) error {
	var mnemonic string
	if generate {
		m, err := hdwallet.NewMnemonic(128)
		if err != nil {
			return fmt.Errorf("生成助记词失败: %w", err)
		}
		mnemonic = m
		fmt.Fprintln(os.Stderr, "新助记词（务必离线抄写备份，丢失无法找回）：")
		fmt.Fprintln(os.Stderr, mnemonic)
	} else {
		fmt.Fprintln(os.Stderr, "请输入助记词（12/24 个单词），回车结束：")
		mnemonic = strings.TrimSpace(readLine())
		if mnemonic == "" {
			return errors.New("助记词为空")
		}
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return fmt.Errorf("解析助记词失败: %w", err)
	}

	path := hdwallet.MustParseDerivationPath(fmt.Sprintf("m/44'/60'/0'/0/%d", index))
	account, err := wallet.Derive(path, false)
	if err != nil {
		return fmt.Errorf("派生账户失败: %w", err)
	}
	privateKeyHex, err := wallet.PrivateKeyHex(account)
	if err != nil {
		return fmt.Errorf("导出私钥失败: %w", err)
	}

	encKey, err := secretstore.KeyFromEnv()
	if err != nil {
		return err
	}
	if encKey == nil {
		fmt.Fprintf(os.Stderr, "⚠️ 未设置 %s，密钥库将以明文存储（仅限开发环境）\n", secretstore.EnvEncryptionKey)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          storePath,
		EncryptionKey: encKey,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetString(secretstore.KeyWalletPrivateKey, privateKeyHex); err != nil {
		return fmt.Errorf("写入私钥失败: %w", err)
	}
	if err := store.SetString(secretstore.KeyWalletAddress, account.Address.Hex()); err != nil {
		return fmt.Errorf("写入地址失败: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✅ 钱包已写入 %s\n地址: %s\n派生路径: %s\n", storePath, account.Address.Hex(), path)
	return nil
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}
