package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"legal-rag-go/internal/config"
	"legal-rag-go/pkg/log"
)

// MinIOStore 把抽取结果以 JSON 对象的形式保存在 MinIO 中。
type MinIOStore struct {
	client *minio.Client
	bucket string
}

var _ PayloadStore = (*MinIOStore)(nil)

// NewMinIOStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
	return &MinIOStore{client: client, bucket: cfg.BucketName}, nil
}

func (s *MinIOStore) PutExtracted(ctx context.Context, key string, payload *ExtractedText) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化抽取结果失败: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

func (s *MinIOStore) GetExtracted(ctx context.Context, key string) (*ExtractedText, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下载对象 %s 失败: %w", key, err)
	}
	defer obj.Close()

	var payload ExtractedText
	if err := json.NewDecoder(obj).Decode(&payload); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("读取对象 %s 失败: %w", key, err)
	}
	return &payload, nil
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("删除对象 %s 失败: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
