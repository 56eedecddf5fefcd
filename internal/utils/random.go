package utils

import (
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mozillazg/go-pinyin"
	"github.com/sapls/staff-shift/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

// GenerateEmailLocalPart 用姓名拼音的前缀加随机数字生成邮箱用户名
func GenerateEmailLocalPart(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	localPart := ""

	for _, py := range pinyinArray {
		length := rand.Intn(len(py)) + 1
		localPart += py[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		localPart += string(digits[rand.Intn(len(digits))])
	}

	return localPart
}

func GenerateRandomStaff(password string, emailDomainName string) (*domain.User, error) {
	fullName := GenerateRandomChineseName()
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        GenerateEmailLocalPart(fullName) + "@" + emailDomainName,
		Role:         domain.RoleStaff,
	}

	return user, nil
}

// 用 Fisher-Yates 洗牌算法来生成随机的星期序号，结果按升序排列
func GenerateRandomDayOfWeeks() string {
	days := []int{0, 1, 2, 3, 4, 5, 6}

	for i := len(days) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		days[i], days[j] = days[j], days[i]
	}

	n := rand.Intn(len(days)) + 1
	picked := days[:n]
	slices.Sort(picked)

	parts := make([]string, n)
	for i, d := range picked {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// 从 staffIDs 中随机选出非空子集
func GenerateRandomSubset(staffIDs []string) []string {
	idsCopy := append([]string{}, staffIDs...) // 复制数组，避免修改原数组

	for i := 0; i < len(idsCopy)-1; i++ {
		j := rand.Intn(len(idsCopy)-i) + i
		idsCopy[i], idsCopy[j] = idsCopy[j], idsCopy[i]
	}

	l := rand.Intn(len(idsCopy)) + 1
	return idsCopy[:l]
}

// GenerateRandomStaffShift 生成一个能通过 ValidateStaffShift 的班次，staffIDs 不能为空
func GenerateRandomStaffShift(staffIDs []string, now time.Time) *domain.StaffShift {
	// 开始时间至少为 1 分钟，避开 0 到 0 的占位值
	start := rand.Intn(20*60) + 1
	end := start + 60 + rand.Intn(domain.MaxShiftMinute-start-60+1)

	shift := &domain.StaffShift{
		ID:        uuid.NewString(),
		StaffIDs:  GenerateRandomSubset(staffIDs),
		StartTime: &start,
		EndTime:   &end,
		ShiftType: domain.ShiftTypeRegular,
	}

	if rand.Intn(2) == 0 {
		shift.DayOfWeeks = GenerateRandomDayOfWeeks()
	} else {
		shift.ShiftType = domain.ShiftTypeEmergency
		shift.SpecificDate = now.AddDate(0, 0, rand.Intn(30)+1).Format(domain.DateLayout)
		shift.Notes = "临时增援"
	}

	return shift
}
