package models

// Project is owned by the project service; rosters only count and list them.
type Project struct {
	BaseModel

	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"size:32;default:'active'" json:"status"`
	OwnerID     string `gorm:"size:36;index;not null" json:"ownerId"`

	Owner   *User  `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	Members []User `gorm:"many2many:project_members;" json:"-"`
}
