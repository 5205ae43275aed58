package buffer

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("reports")

// 离线缓存的样本上限，超过后丢弃最老的样本
const maxBuffered = 1000

// Buffer 离线上报缓存
// 服务端不可达期间把采集到的样本按序落盘，恢复连接后按采集顺序补报。
type Buffer struct {
	db *bolt.DB
}

// Open 打开（必要时创建）缓存文件
func Open(path string) (*Buffer, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Buffer{db: db}, nil
}

// Append 追加一条待补报的样本
func (b *Buffer) Append(payload []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := bucket.Put(key, payload); err != nil {
			return err
		}

		// 超限时从最老的开始丢
		var keys [][]byte
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; len(keys)-i > maxBuffered; i++ {
			if err := bucket.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Drain 按序补报缓存的样本，send 成功一条删一条，失败时停止并保留剩余样本
func (b *Buffer) Drain(send func(payload []byte) error) error {
	for {
		var key, payload []byte
		err := b.db.View(func(tx *bolt.Tx) error {
			k, v := tx.Bucket(bucketName).Cursor().First()
			if k != nil {
				key = append([]byte(nil), k...)
				payload = append([]byte(nil), v...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}

		if err := send(payload); err != nil {
			return err
		}

		err = b.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketName).Delete(key)
		})
		if err != nil {
			return err
		}
	}
}

// Len 当前缓存的样本数
func (b *Buffer) Len() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return n, err
}

// Close 关闭缓存文件
func (b *Buffer) Close() error {
	return b.db.Close()
}
