package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

var validate = validator.New()

// HashPassword 使用 bcrypt 对密码进行哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword 验证密码
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// NormalizeEmail 去空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeID 去掉首尾空白, 只保留第一个空白分隔的片段
func NormalizeID(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ValidID 是否为合法 ID (正的十进制 int64)
func ValidID(id string) bool {
	_, err := snowflake.ParseString(id)
	return err == nil
}
