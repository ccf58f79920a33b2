package chain

import "github.com/kjaylee/eastsea-node/internal/hashutil"

func sum256(data []byte) [32]byte {
	return hashutil.Sum256(data)
}
