package census

// Variable maps an upstream variable code to the field name it is stored under.
type Variable struct {
	Code  string
	Field string
}

// Upstream column names shared by every table.
const (
	NameColumn = "NAME"
	GeoColumn  = "zip code tabulation area"
)

const (
	// MaxFieldsPerQuery is the upstream cap on requested fields, NAME included.
	MaxFieldsPerQuery = 50
	// RaceSplitAt is where the race variable list is cut into two queries.
	RaceSplitAt = 31
)

// IncomeVariables are requested from the ACS 5-year detailed tables. Total
// population rides along with the income query.
var IncomeVariables = []Variable{
	{"B01001_001E", "TotalPopulation"},
	{"B19013_001E", "MedianIncome"},
	{"B19001_002E", "Income_Less_Than_10K"},
	{"B19001_003E", "Income_10K_14K"},
	{"B19001_004E", "Income_15K_24K"},
	{"B19001_005E", "Income_25K_34K"},
	{"B19001_006E", "Income_35K_49K"},
	{"B19001_007E", "Income_50K_74K"},
	{"B19001_008E", "Income_75K_99K"},
	{"B19001_009E", "Income_100K_149K"},
	{"B19001_010E", "Income_150K_199K"},
	{"B19001_011E", "Income_200K_Plus"},
}

// OccupationVariables are requested from ACS subject table S2401.
var OccupationVariables = []Variable{
	{"S2401_C01_001E", "CivEmp16Over"},
	{"S2401_C01_002E", "MgmtBusSciArts"},
	{"S2401_C01_003E", "MgmtBusFin"},
	{"S2401_C01_004E", "MgmtOccupations"},
	{"S2401_C01_005E", "BusinessFinOps"},
	{"S2401_C01_006E", "CompEngSci"},
	{"S2401_C01_007E", "ComputerMath"},
	{"S2401_C01_008E", "ArchitectureEng"},
	{"S2401_C01_009E", "LifePhysSci"},
	{"S2401_C01_010E", "EducLegalCommArtsMedia"},
	{"S2401_C01_011E", "CommunitySocService"},
	{"S2401_C01_012E", "Legal"},
	{"S2401_C01_013E", "EduInstructionLibrary"},
	{"S2401_C01_014E", "ArtsDesignEntertainmentSportsMedia"},
	{"S2401_C01_015E", "HealthcarePracTech"},
	{"S2401_C01_016E", "HealthDiagTreat"},
	{"S2401_C01_017E", "HealthTechs"},
	{"S2401_C01_018E", "ServiceOcc"},
	{"S2401_C01_019E", "HealthcareSupport"},
	{"S2401_C01_020E", "ProtectiveService"},
	{"S2401_C01_021E", "FirefightingPreventionEtc"},
	{"S2401_C01_022E", "LawEnforcementEtc"},
	{"S2401_C01_023E", "FoodPrepServing"},
	{"S2401_C01_024E", "BuildingGroundsMaint"},
	{"S2401_C01_025E", "PersonalCareService"},
	{"S2401_C01_026E", "SalesOfficeOcc"},
	{"S2401_C01_027E", "SalesRelated"},
	{"S2401_C01_028E", "OfficeAdminSupport"},
	{"S2401_C01_029E", "NatResConstMaint"},
	{"S2401_C01_030E", "FarmFishForestry"},
	{"S2401_C01_031E", "ConstructionExtraction"},
	{"S2401_C01_032E", "InstallMaintRepair"},
	{"S2401_C01_033E", "ProdTransMoving"},
	{"S2401_C01_034E", "Production"},
	{"S2401_C01_035E", "Transportation"},
	{"S2401_C01_036E", "MaterialMoving"},
}

// RaceVariables are requested from the 2020 DHC table P8.
var RaceVariables = []Variable{
	{"P8_001N", "Total"},
	{"P8_002N", "Population of one race"},
	{"P8_003N", "White alone"},
	{"P8_004N", "Black or African American alone"},
	{"P8_005N", "American Indian and Alaska Native alone"},
	{"P8_006N", "Asian alone"},
	{"P8_007N", "Native Hawaiian and Other Pacific Islander alone"},
	{"P8_008N", "Some Other Race alone"},
	{"P8_009N", "Population of two or more races"},
	{"P8_010N", "Population of two races"},
	{"P8_011N", "White; Black or African American"},
	{"P8_012N", "White; American Indian and Alaska Native"},
	{"P8_013N", "White; Asian"},
	{"P8_014N", "White; Native Hawaiian and Other Pacific Islander"},
	{"P8_015N", "White; Some Other Race"},
	{"P8_016N", "Black or African American; American Indian and Alaska Native"},
	{"P8_017N", "Black or African American; Asian"},
	{"P8_018N", "Black or African American; Native Hawaiian and Other Pacific Islander"},
	{"P8_019N", "Black or African American; Some Other Race"},
	{"P8_020N", "American Indian and Alaska Native; Asian"},
	{"P8_021N", "American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander"},
	{"P8_022N", "American Indian and Alaska Native; Some Other Race"},
	{"P8_023N", "Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_024N", "Asian; Some Other Race"},
	{"P8_025N", "Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_026N", "Population of three races"},
	{"P8_027N", "White; Black or African American; American Indian and Alaska Native"},
	{"P8_028N", "White; Black or African American; Asian"},
	{"P8_029N", "White; Black or African American; Native Hawaiian and Other Pacific Islander"},
	{"P8_030N", "White; Black or African American; Some Other Race"},
	{"P8_031N", "White; American Indian and Alaska Native; Asian"},
	{"P8_032N", "White; American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander"},
	{"P8_033N", "White; American Indian and Alaska Native; Some Other Race"},
	{"P8_034N", "White; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_035N", "White; Asian; Some Other Race"},
	{"P8_036N", "White; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_037N", "Black or African American; American Indian and Alaska Native; Asian"},
	{"P8_038N", "Black or African American; American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander"},
	{"P8_039N", "Black or African American; American Indian and Alaska Native; Some Other Race"},
	{"P8_040N", "Black or African American; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_041N", "Black or African American; Asian; Some Other Race"},
	{"P8_042N", "Black or African American; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_043N", "American Indian and Alaska Native; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_044N", "American Indian and Alaska Native; Asian; Some Other Race"},
	{"P8_045N", "American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_046N", "Asian; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_047N", "Population of four races"},
	{"P8_048N", "White; Black or African American; American Indian and Alaska Native; Asian"},
	{"P8_049N", "White; Black or African American; American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander"},
	{"P8_050N", "White; Black or African American; American Indian and Alaska Native; Some Other Race"},
	{"P8_051N", "White; Black or African American; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_052N", "White; Black or African American; Asian; Some Other Race"},
	{"P8_053N", "White; Black or African American; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_054N", "White; American Indian and Alaska Native; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_055N", "White; American Indian and Alaska Native; Asian; Some Other Race"},
	{"P8_056N", "White; American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_057N", "White; Asian; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_058N", "Black or African American; American Indian and Alaska Native; Asian; Native Hawaiian and Other Pacific Islander"},
	{"P8_059N", "Black or African American; American Indian and Alaska Native; Asian; Some Other Race"},
	{"P8_060N", "Black or African American; American Indian and Alaska Native; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_061N", "Black or African American; Asian; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_062N", "American Indian and Alaska Native; Asian; Native Hawaiian and Other Pacific Islander; Some Other Race"},
	{"P8_063N", "Population of five or six races"},
}

// Codes returns the variable codes in order.
func Codes(vars []Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Code
	}
	return out
}
