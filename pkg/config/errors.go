package config

import (
	"fmt"

	"github.com/wentf9/xops-underlay/pkg/models"
)

// NotFoundError 注册表中没有匹配的记录
type NotFoundError struct {
	Target models.Target
	// Entry 在删除失败时记录要删除的记录
	Entry *models.CredentialEntry
}

func (e *NotFoundError) Error() string {
	if e.Entry != nil {
		return fmt.Sprintf("auth data to remove was not found: %s", e.Entry)
	}
	return fmt.Sprintf("auth data for node was not found using node_name=%q, host=%q, address_pool=%q",
		e.Target.NodeName, e.Target.Host, e.Target.AddressPool)
}
