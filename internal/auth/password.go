package auth

import "golang.org/x/crypto/bcrypt"

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト長。
const MaxPasswordBytes = 72

// HashPassword はパスワードのbcryptハッシュを返す。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを返す。
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
