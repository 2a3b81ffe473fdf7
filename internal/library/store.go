package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/briefcast/internal/logger"
)

const indexFile = "library_index.json"

// Briefing 简报库索引中的一条记录。
type Briefing struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	CreatedAt string `json:"created_at"`
	AudioFile string `json:"audio_file"`
}

// DeleteResult 区分「完全干净」与「索引已删但音频残留」的复合删除结果。
type DeleteResult struct {
	IndexRemoved bool  // 索引条目是否存在并被移除
	BlobRemoved  bool  // 音频文件是否存在并被移除
	BlobErr      error // 音频删除失败原因（文件不存在不算失败）
}

// Clean 返回删除是否没有留下任何残留。
func (r DeleteResult) Clean() bool {
	return r.BlobErr == nil
}

// Storage 是存储原语的能力接口，默认实现走本地文件系统。
// 单独抽象出来是为了让测试可以观察/注入读写失败路径。
type Storage interface {
	ReadAll(path string) ([]byte, error)
	WriteAll(path string, data []byte) error
	Remove(path string) error
	// Stat 检查路径是否存在且可访问（索引校验用）。
	Stat(path string) error
}

// osStorage 基于 os 包的默认 Storage 实现。写入先落临时文件再原子改名。
type osStorage struct{}

func (osStorage) ReadAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osStorage) WriteAll(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (osStorage) Remove(path string) error {
	return os.Remove(path)
}

func (osStorage) Stat(path string) error {
	_, err := os.Stat(path)
	return err
}

// Store 管理简报音频文件与 JSON 索引。
// 索引按最近添加在前排序，顺序在持久化往返中保持不变。
type Store struct {
	mu      sync.Mutex
	dir     string
	storage Storage
	entries []Briefing
}

// NewStore 创建简报库，加载已持久化的索引。
// 索引缺失或损坏时降级为空索引，不阻塞启动。
func NewStore(dir string) (*Store, error) {
	return newStoreWithStorage(dir, osStorage{})
}

func newStoreWithStorage(dir string, storage Storage) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建简报库目录失败: %w", err)
	}

	s := &Store{dir: dir, storage: storage}
	s.loadIndex()
	return s, nil
}

// Add 持久化一条新简报：生成 id，写入音频文件，索引条目插入最前。
// 音频写入失败则整个操作失败，索引保持不变。
func (s *Store) Add(topic string, audioData []byte) (Briefing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	b := Briefing{
		ID:        id,
		Topic:     topic,
		CreatedAt: time.Now().Format(time.RFC3339),
		AudioFile: id + ".wav",
	}

	if err := s.storage.WriteAll(filepath.Join(s.dir, b.AudioFile), audioData); err != nil {
		return Briefing{}, fmt.Errorf("写入音频文件失败: %w", err)
	}

	// 最近添加在前
	s.entries = append([]Briefing{b}, s.entries...)

	if err := s.persistIndexLocked(); err != nil {
		// 内存中的索引仍然正确，持久化副本暂时落后
		logger.Errorf("[library] 保存索引失败: %v", err)
	}

	logger.Infof("[library] 已保存简报: %s (%s, %d 字节)", topic, id, len(audioData))
	return b, nil
}

// Delete 删除指定 id 的简报。
// 先尝试删音频并记录结果，索引条目总是移除（不存在则为空操作），
// 返回复合结果供调用方决定是否提示残留。
func (s *Store) Delete(id string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res DeleteResult

	idx := -1
	for i, b := range s.entries {
		if b.ID == id {
			idx = i
			break
		}
	}

	audioFile := id + ".wav"
	if idx >= 0 {
		audioFile = s.entries[idx].AudioFile
	}

	// 音频删除是尽力而为：文件不存在不算错误，目标是索引一致性
	if err := s.storage.Remove(filepath.Join(s.dir, audioFile)); err != nil {
		if !os.IsNotExist(err) {
			res.BlobErr = err
			logger.Warnf("[library] 删除音频文件失败: %s: %v", audioFile, err)
		}
	} else {
		res.BlobRemoved = true
	}

	if idx >= 0 {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		res.IndexRemoved = true
		if err := s.persistIndexLocked(); err != nil {
			logger.Errorf("[library] 保存索引失败: %v", err)
		}
		logger.Infof("[library] 已删除简报: %s", id)
	}

	return res, nil
}

// List 返回索引快照，最近添加在前。
func (s *Store) List() []Briefing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Briefing, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get 按 id 查找索引条目。
func (s *Store) Get(id string) (Briefing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.entries {
		if b.ID == id {
			return b, true
		}
	}
	return Briefing{}, false
}

// ReadAudio 读取指定简报的音频字节（用于重播）。
func (s *Store) ReadAudio(id string) ([]byte, error) {
	s.mu.Lock()
	b, ok := Briefing{}, false
	for _, e := range s.entries {
		if e.ID == id {
			b, ok = e, true
			break
		}
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("简报不存在: %s", id)
	}
	data, err := s.storage.ReadAll(filepath.Join(s.dir, b.AudioFile))
	if err != nil {
		return nil, fmt.Errorf("读取音频文件失败: %w", err)
	}
	return data, nil
}

// loadIndex 从磁盘加载索引。任何解码失败都降级为空索引：
// 简报库的设计是宁可退化为「无历史」，也不因缓存损坏阻塞整个系统。
func (s *Store) loadIndex() {
	data, err := s.storage.ReadAll(filepath.Join(s.dir, indexFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[library] 读取索引失败（将使用空索引）: %v", err)
		}
		return
	}

	var entries []Briefing
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warnf("[library] 索引损坏（将使用空索引）: %v", err)
		return
	}

	// 校验索引：移除音频文件不存在的条目，索引与文件目录不允许分叉
	valid := entries[:0]
	removed := 0
	for _, b := range entries {
		if b.ID == "" || b.AudioFile == "" {
			removed++
			continue
		}
		if err := s.storage.Stat(filepath.Join(s.dir, b.AudioFile)); err != nil {
			removed++
			continue
		}
		valid = append(valid, b)
	}
	s.entries = valid

	if removed > 0 {
		logger.Infof("[library] 索引校验：移除 %d 个无效条目", removed)
		if err := s.persistIndexLocked(); err != nil {
			logger.Warnf("[library] 保存校验后的索引失败: %v", err)
		}
	}

	logger.Infof("[library] 简报库已加载: %d 条记录, 目录 %s", len(s.entries), s.dir)
}

// persistIndexLocked 全量序列化并覆盖写入索引（调用方需持有锁）。
func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	return s.storage.WriteAll(filepath.Join(s.dir, indexFile), data)
}
