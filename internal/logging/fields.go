package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CollectionFields 描述正在处理的集合（章节）。
func CollectionFields(key, title string) logrus.Fields {
	return logrus.Fields{
		"collection": key,
		"title":      title,
	}
}

// BatchFields 标记一次下载批次。
func BatchFields(batchID string, total, limit int) logrus.Fields {
	return logrus.Fields{
		"batch_id": batchID,
		"total":    total,
		"limit":    limit,
	}
}
