// Package es 提供基于 Elasticsearch dense_vector 的向量集合实现。
package es

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"legal-rag-go/internal/config"
	"legal-rag-go/pkg/log"
)

// NewClient 创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}
	return client, nil
}

// indexMapping 返回集合索引的 mapping。metadata 下的字符串字段一律映射为 keyword 以支持 term 过滤。
func indexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"dynamic_templates": [
				{
					"metadata_strings": {
						"path_match": "metadata.*",
						"match_mapping_type": "string",
						"mapping": { "type": "keyword" }
					}
				}
			],
			"properties": {
				"text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "object" }
			}
		}
	}`, dims)
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (c *Collection) EnsureIndex(ctx context.Context) error {
	res, err := c.client.Indices.Exists([]string{c.index}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.index, res.StatusCode)
	}

	res, err = c.client.Indices.Create(
		c.index,
		c.client.Indices.Create.WithContext(ctx),
		c.client.Indices.Create.WithBody(strings.NewReader(indexMapping(c.dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.Status())
	}

	log.Infof("索引 '%s' 创建成功, 向量维度 %d", c.index, c.dims)
	return nil
}
