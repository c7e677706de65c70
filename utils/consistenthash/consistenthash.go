package consistenthash

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/twmb/murmur3"
)

// Hash 哈希函数
type Hash func(data []byte) uint32

// Ring 一致性哈希环, 推送中心用它把房间路由到固定的分发分片
type Ring struct {
	mu       sync.RWMutex
	hash     Hash
	replicas int
	keys     []uint32
	hashMap  map[uint32]string
	nodes    map[string]struct{}
}

// New 创建哈希环, fn 为 nil 时使用 murmur3
func New(replicas int, fn Hash) *Ring {
	if fn == nil {
		fn = murmur3.Sum32
	}
	if replicas <= 0 {
		replicas = 50
	}
	return &Ring{
		hash:     fn,
		replicas: replicas,
		hashMap:  make(map[uint32]string),
		nodes:    make(map[string]struct{}),
	}
}

func virtualKey(node string, i int) []byte {
	return []byte(node + "#" + strconv.Itoa(i))
}

// Add 加入节点, 空名与重复节点被忽略
func (r *Ring) Add(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, node := range nodes {
		if node == "" {
			continue
		}
		if _, ok := r.nodes[node]; ok {
			continue
		}
		r.nodes[node] = struct{}{}
		for i := range r.replicas {
			h := r.hash(virtualKey(node, i))
			// 碰撞时先到者保留位置
			if _, taken := r.hashMap[h]; taken {
				continue
			}
			r.hashMap[h] = node
			r.keys = append(r.keys, h)
		}
	}
	slices.Sort(r.keys)
}

// Remove 移除节点及其虚拟节点
func (r *Ring) Remove(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, node := range nodes {
		if _, ok := r.nodes[node]; !ok {
			continue
		}
		delete(r.nodes, node)
		for i := range r.replicas {
			h := r.hash(virtualKey(node, i))
			if r.hashMap[h] == node {
				delete(r.hashMap, h)
			}
		}
	}

	r.keys = r.keys[:0]
	for h := range r.hashMap {
		r.keys = append(r.keys, h)
	}
	slices.Sort(r.keys)
}

// Get 返回 key 顺时针方向最近的节点, 环为空时返回空串
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.keys) == 0 {
		return ""
	}
	h := r.hash([]byte(key))
	idx := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= h })
	if idx == len(r.keys) {
		idx = 0
	}
	return r.hashMap[r.keys[idx]]
}

func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
