// Package idgen 生成业务单号。
//
// 单号 = 前缀 + 秒级时间 + 雪花ID低8位，趋势递增且同进程内不重复：
//
//	0 | 41位毫秒时间戳 | 10位机器ID | 12位序列号
package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	PrefixPayment    = "PAY"
	PrefixImage      = "IMG"
	PrefixLedgerItem = "TXN"
)

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// NewSnowflake workerID 超出范围时返回错误
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间: %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认生成器，只有第一次调用生效
func Init(workerID int64) {
	once.Do(func() {
		s, err := NewSnowflake(workerID)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defaultGenerator = s
	})
}

func NextID() int64 {
	Init(1)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 当前毫秒序列号用完
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) | (s.workerID << workerIDShift) | s.sequence
}

func generateNo(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", prefix, time.Now().Format("20060102150405"), id%100000000)
}

// GeneratePaymentNo 支付单号，例如 PAY2024011514305212345678
func GeneratePaymentNo() string {
	return generateNo(PrefixPayment)
}

// GenerateImageNo 图片记录编号
func GenerateImageNo() string {
	return generateNo(PrefixImage)
}

// GenerateEntryNo 积分流水号
func GenerateEntryNo() string {
	return generateNo(PrefixLedgerItem)
}
