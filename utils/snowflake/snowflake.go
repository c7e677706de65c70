package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch 自定义纪元 2024-01-01 00:00:00 UTC (毫秒)
	Epoch int64 = 1704067200000

	workerIDBits uint8 = 10
	sequenceBits uint8 = 12

	MaxWorkerID  = -1 ^ (-1 << workerIDBits)
	sequenceMask = -1 ^ (-1 << sequenceBits)

	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

var (
	ErrInvalidWorkerID     = errors.New("worker ID exceeds maximum value")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
	ErrMalformedID         = errors.New("malformed id")
)

// Generator 生成按时间递增的 63 位 ID: 41 位毫秒时间戳 | 10 位节点 | 12 位序列
type Generator struct {
	mu            sync.Mutex
	workerID      int64
	sequence      int64
	lastTimestamp int64
	now           func() int64
}

func NewGenerator(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID 生成下一个 ID, 同一毫秒内序列耗尽时自旋到下一毫秒
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTimestamp {
		return 0, ErrClockMovedBackwards
	}
	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ts <= g.lastTimestamp {
				ts = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return (ts-Epoch)<<timestampShift | g.workerID<<workerIDShift | g.sequence, nil
}

// NextString 以十进制字符串形式返回下一个 ID, 这是存储与传输使用的规范形式
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// ParseString 解析十进制 ID, 只接受正整数且不允许符号或前导零
func ParseString(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' || (len(s) > 1 && s[0] == '0') {
		return 0, ErrMalformedID
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMalformedID
	}
	return id, nil
}

// Timestamp 返回 ID 中编码的生成时间
func Timestamp(id int64) time.Time {
	return time.UnixMilli((id >> timestampShift) + Epoch)
}

func WorkerID(id int64) int64 {
	return (id >> workerIDShift) & MaxWorkerID
}
