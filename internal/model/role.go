package model

// Role 角色
type Role string

const (
	RoleOwner     Role = "owner"
	RoleOperator  Role = "operator"
	RoleValidator Role = "validator"
	RoleKeeper    Role = "keeper"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleOperator, RoleValidator, RoleKeeper:
		return true
	}
	return false
}

// RoleBinding 组件角色与地址的绑定, 每个组件每个角色一个地址
type RoleBinding struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Component Component `gorm:"column:component;type:varchar(16);not null;uniqueIndex:uk_component_role" json:"component"`
	Role      Role      `gorm:"column:role;type:varchar(16);not null;uniqueIndex:uk_component_role" json:"role"`
	Address   string    `gorm:"column:address;type:varchar(42);not null" json:"address"`
	UpdatedBy string    `gorm:"column:updated_by;type:varchar(42)" json:"updated_by"`
	CreatedAt int64     `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt int64     `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (RoleBinding) TableName() string {
	return "yield_role_bindings"
}
